package backup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "dynamo-lifecycle/internal/errors"
)

// Manifest is the authoritative description of one backup. It is written
// to blob storage last, after every chunk file it references, so a manifest
// that exists always describes a complete backup.
type Manifest struct {
	BackupName  string                      `json:"backupName"`
	Environment string                      `json:"environment"`
	CreatedAt   time.Time                   `json:"createdAt"`
	Tables      map[string]*TableBackupInfo `json:"tables"`
	Statistics  ManifestStatistics          `json:"statistics"`
	Location    ManifestLocation            `json:"location"`
}

// ManifestStatistics aggregates counts across every table in the backup
type ManifestStatistics struct {
	TotalItems int64 `json:"totalItems"`
	TotalFiles int   `json:"totalFiles"`
}

// ManifestLocation records where the backup artifacts live
type ManifestLocation struct {
	BlobPrefix  string `json:"blobPrefix"`
	ManifestKey string `json:"manifestKey"`
}

// TableBackupInfo describes the exported state of one table. An incremental
// backup that found no changed items keeps the entry with a zero ItemCount
// and no files, which marks the table as covered but empty.
type TableBackupInfo struct {
	TableName     string         `json:"tableName"`
	ItemCount     int64          `json:"itemCount"`
	Files         []ChunkFileRef `json:"files"`
	TableMetadata TableMetadata  `json:"tableMetadata"`
}

// TableMetadata is the table state captured at snapshot time
type TableMetadata struct {
	Status              string `json:"status"`
	ItemCountAtSnapshot int64  `json:"itemCountAtSnapshot"`
	SizeBytes           int64  `json:"sizeBytes"`
}

// ChunkFileRef points at one chunk file of a table export. ChunkIndex runs
// contiguously from 0 and the per-chunk item counts sum to the table's
// ItemCount.
type ChunkFileRef struct {
	BlobKey    string `json:"blobKey"`
	ChunkIndex int    `json:"chunkIndex"`
	ItemCount  int    `json:"itemCount"`
	Compressed bool   `json:"compressed"`
}

// GenerateBackupName generates a unique, time-sortable backup name
func GenerateBackupName() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	shortUUID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("backup-%s-%s", timestamp, shortUUID)
}

// Validate checks the manifest invariants
func (m *Manifest) Validate() error {
	var errs appErrors.ValidationErrors

	if m.BackupName == "" {
		errs.Add("backupName", "backup name is required", m.BackupName)
	}
	if m.Environment == "" {
		errs.Add("environment", "environment is required", m.Environment)
	}
	if m.CreatedAt.IsZero() {
		errs.Add("createdAt", "creation time is required", nil)
	}
	if m.Location.BlobPrefix == "" {
		errs.Add("location.blobPrefix", "blob prefix is required", nil)
	}
	if m.Location.ManifestKey == "" {
		errs.Add("location.manifestKey", "manifest key is required", nil)
	}

	var totalItems int64
	var totalFiles int
	for tableName, info := range m.Tables {
		if info == nil {
			errs.Add("tables."+tableName, "table entry is empty", nil)
			continue
		}
		if info.TableName != tableName {
			errs.Add("tables."+tableName, "table name does not match its key", info.TableName)
		}
		if err := info.validateChunks(); err != nil {
			errs.Add("tables."+tableName, err.Error(), nil)
		}
		totalItems += info.ItemCount
		totalFiles += len(info.Files)
	}

	if m.Statistics.TotalItems != totalItems {
		errs.Add("statistics.totalItems",
			fmt.Sprintf("declared %d items but tables hold %d", m.Statistics.TotalItems, totalItems), nil)
	}
	if m.Statistics.TotalFiles != totalFiles {
		errs.Add("statistics.totalFiles",
			fmt.Sprintf("declared %d files but tables hold %d", m.Statistics.TotalFiles, totalFiles), nil)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateChunks checks that chunk indices run contiguously from 0 and the
// chunk item counts add up to the table item count
func (info *TableBackupInfo) validateChunks() error {
	files := make([]ChunkFileRef, len(info.Files))
	copy(files, info.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].ChunkIndex < files[j].ChunkIndex })

	var itemSum int64
	for i, file := range files {
		if file.ChunkIndex != i {
			return fmt.Errorf("chunk indices are not contiguous: found %d at position %d", file.ChunkIndex, i)
		}
		if file.BlobKey == "" {
			return fmt.Errorf("chunk %d has no blob key", file.ChunkIndex)
		}
		itemSum += int64(file.ItemCount)
	}
	if itemSum != info.ItemCount {
		return fmt.Errorf("chunk item counts sum to %d but table declares %d", itemSum, info.ItemCount)
	}
	return nil
}

// SortedFiles returns the chunk files ordered by chunk index
func (info *TableBackupInfo) SortedFiles() []ChunkFileRef {
	files := make([]ChunkFileRef, len(info.Files))
	copy(files, info.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].ChunkIndex < files[j].ChunkIndex })
	return files
}

// TableNames returns the manifest's table names in deterministic order,
// with the given primary table first when present
func (m *Manifest) TableNames(primaryFirst string) []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		if name != primaryFirst {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := m.Tables[primaryFirst]; ok {
		names = append([]string{primaryFirst}, names...)
	}
	return names
}

// Summary is the listing view of one backup
type Summary struct {
	BackupName  string    `json:"backupName"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"createdAt"`
	TotalItems  int64     `json:"totalItems"`
	TotalFiles  int       `json:"totalFiles"`
	Tables      int       `json:"tables"`
	ManifestKey string    `json:"manifestKey"`
}

// Summarize produces the listing view of this manifest
func (m *Manifest) Summarize() Summary {
	return Summary{
		BackupName:  m.BackupName,
		Environment: m.Environment,
		CreatedAt:   m.CreatedAt,
		TotalItems:  m.Statistics.TotalItems,
		TotalFiles:  m.Statistics.TotalFiles,
		Tables:      len(m.Tables),
		ManifestKey: m.Location.ManifestKey,
	}
}

// Result reports one finished backup run
type Result struct {
	Manifest *Manifest     `json:"manifest"`
	Duration time.Duration `json:"duration"`
	// Incremental marks a changed-items-only backup
	Incremental bool `json:"incremental"`
	// Since is the lower bound used for incremental scans
	Since time.Time `json:"since,omitempty"`
}

// TableRestoreResult reports the per-table outcome of a restore
type TableRestoreResult struct {
	TableName string `json:"tableName"`
	Restored  int64  `json:"restored"`
	Skipped   int64  `json:"skipped"`
	Failed    int64  `json:"failed"`
	// Error holds the failure that stopped this table, empty on success
	Error string `json:"error,omitempty"`
}

// RestoreResult reports one restore run. Tables fail independently, so a
// result can carry both restored tables and failed ones.
type RestoreResult struct {
	BackupName string                         `json:"backupName"`
	DryRun     bool                           `json:"dryRun"`
	Tables     map[string]*TableRestoreResult `json:"tables"`
	Duration   time.Duration                  `json:"duration"`
}

// Failed reports whether any table failed to restore
func (r *RestoreResult) Failed() bool {
	for _, table := range r.Tables {
		if table.Error != "" {
			return true
		}
	}
	return false
}

// TotalRestored sums restored items across tables
func (r *RestoreResult) TotalRestored() int64 {
	var total int64
	for _, table := range r.Tables {
		total += table.Restored
	}
	return total
}

// TotalSkipped sums conflict-skipped items across tables
func (r *RestoreResult) TotalSkipped() int64 {
	var total int64
	for _, table := range r.Tables {
		total += table.Skipped
	}
	return total
}
