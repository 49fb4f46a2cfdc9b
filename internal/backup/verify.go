package backup

import (
	"context"
	"fmt"
	"strings"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/logging"
)

// Check names in verification reports
const (
	CheckManifest   = "manifest"
	CheckFiles      = "files"
	CheckDataFormat = "dataFormat"
)

// CheckResult is the outcome of one verification check
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// VerificationReport collects the checks run against one backup
type VerificationReport struct {
	BackupName string        `json:"backupName"`
	Checks     []CheckResult `json:"checks"`
}

// Passed reports whether every check passed
func (r *VerificationReport) Passed() bool {
	for _, check := range r.Checks {
		if !check.Passed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// Check returns the named check result, or nil
func (r *VerificationReport) Check(name string) *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

// Verifier inspects backups in blob storage. It never writes and never
// touches the item store, so it is safe to run against production data.
type Verifier struct {
	blobStore blob.Store
	chunks    *chunkReader
	layout    Layout
	cfg       *config.Config
	logger    *logging.Logger
}

// NewVerifier creates a verifier for the configured blob store
func NewVerifier(blobStore blob.Store, cfg *config.Config, logger *logging.Logger) (*Verifier, error) {
	cipher, err := NewChunkCipher(&cfg.Backup.Encryption)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		blobStore: blobStore,
		chunks: &chunkReader{
			blobStore:   blobStore,
			compression: NewCompressionManager(),
			cipher:      cipher,
		},
		layout: Layout{Prefix: cfg.Blob.Prefix, Environment: cfg.Environment},
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Verify runs every check against the named backup. The checks are
// independent: a failure is recorded in the report and the remaining
// checks still run. Only the report says whether the backup is sound.
func (v *Verifier) Verify(ctx context.Context, nameOrPath string) *VerificationReport {
	blobPath := nameOrPath
	if !strings.Contains(nameOrPath, "/") {
		blobPath = v.layout.BackupPrefix(nameOrPath)
	}
	report := &VerificationReport{BackupName: nameOrPath}

	resolved, err := Resolve(ctx, v.blobStore, blobPath)
	if err != nil {
		report.Checks = []CheckResult{
			{Name: CheckManifest, Passed: false, Details: err.Error()},
			{Name: CheckFiles, Passed: false, Details: "no backup resolved at " + blobPath},
			{Name: CheckDataFormat, Passed: false, Details: "no backup resolved at " + blobPath},
		}
		v.logReport(report)
		return report
	}

	if resolved.Manifest != nil {
		report.BackupName = resolved.Manifest.BackupName
		report.Checks = []CheckResult{
			v.checkManifest(resolved.Manifest),
			v.checkFiles(ctx, resolved.Manifest),
			v.checkDataFormat(ctx, resolved.Manifest),
		}
	} else {
		report.Checks = []CheckResult{
			{Name: CheckManifest, Passed: false, Details: "legacy layout without a manifest: " + resolved.LegacyKey},
			v.checkLegacyFile(ctx, resolved.LegacyKey),
			v.checkLegacyFormat(ctx, resolved.LegacyKey),
		}
	}
	v.logReport(report)
	return report
}

func (v *Verifier) checkManifest(manifest *Manifest) CheckResult {
	if err := manifest.Validate(); err != nil {
		return CheckResult{Name: CheckManifest, Passed: false, Details: err.Error()}
	}
	return CheckResult{
		Name:   CheckManifest,
		Passed: true,
		Details: fmt.Sprintf("%d tables, %d items, %d files",
			len(manifest.Tables), manifest.Statistics.TotalItems, manifest.Statistics.TotalFiles),
	}
}

// checkFiles confirms every chunk file the manifest references exists.
// Only object metadata is fetched, no chunk data is downloaded.
func (v *Verifier) checkFiles(ctx context.Context, manifest *Manifest) CheckResult {
	var problems []string
	total := 0
	for _, tableName := range manifest.TableNames("") {
		for _, file := range manifest.Tables[tableName].SortedFiles() {
			total++
			info, err := v.blobStore.Head(ctx, file.BlobKey)
			if err != nil {
				problems = append(problems, "missing "+file.BlobKey)
				continue
			}
			if info.Size == 0 && file.ItemCount > 0 {
				problems = append(problems, "empty "+file.BlobKey)
			}
		}
	}
	if len(problems) > 0 {
		return CheckResult{Name: CheckFiles, Passed: false, Details: strings.Join(problems, "; ")}
	}
	return CheckResult{Name: CheckFiles, Passed: true, Details: fmt.Sprintf("%d chunk files present", total)}
}

// checkDataFormat downloads the first chunk of the primary table and
// confirms it decodes to items carrying the key attributes
func (v *Verifier) checkDataFormat(ctx context.Context, manifest *Manifest) CheckResult {
	file, ok := v.sampleChunk(manifest)
	if !ok {
		return CheckResult{Name: CheckDataFormat, Passed: true, Details: "no chunk data to inspect"}
	}

	items, err := v.chunks.read(ctx, file)
	if err != nil {
		return CheckResult{Name: CheckDataFormat, Passed: false, Details: err.Error()}
	}
	for i, item := range items {
		for _, attr := range v.cfg.Store.Tables.KeyAttributes {
			if _, present := item[attr]; !present {
				return CheckResult{
					Name:    CheckDataFormat,
					Passed:  false,
					Details: fmt.Sprintf("item %d in %s is missing attribute %s", i, file.BlobKey, attr),
				}
			}
		}
	}
	return CheckResult{
		Name:    CheckDataFormat,
		Passed:  true,
		Details: fmt.Sprintf("checked %d items in %s", len(items), file.BlobKey),
	}
}

// sampleChunk picks the first chunk of the primary table, falling back to
// any table that has chunk data
func (v *Verifier) sampleChunk(manifest *Manifest) (ChunkFileRef, bool) {
	var fallback *ChunkFileRef
	for _, tableName := range manifest.TableNames("") {
		info := manifest.Tables[tableName]
		if len(info.Files) == 0 {
			continue
		}
		first := info.SortedFiles()[0]
		if v.cfg.TableAlias(tableName) == v.cfg.Store.Tables.Primary {
			return first, true
		}
		if fallback == nil {
			fallback = &first
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return ChunkFileRef{}, false
}

func (v *Verifier) checkLegacyFile(ctx context.Context, legacyKey string) CheckResult {
	info, err := v.blobStore.Head(ctx, legacyKey)
	if err != nil {
		return CheckResult{Name: CheckFiles, Passed: false, Details: "missing " + legacyKey}
	}
	if info.Size == 0 {
		return CheckResult{Name: CheckFiles, Passed: false, Details: "empty " + legacyKey}
	}
	return CheckResult{Name: CheckFiles, Passed: true, Details: fmt.Sprintf("%s (%d bytes)", legacyKey, info.Size)}
}

func (v *Verifier) checkLegacyFormat(ctx context.Context, legacyKey string) CheckResult {
	primary := v.cfg.TableName(v.cfg.Store.Tables.Primary)
	payload, err := ReadLegacyPayload(ctx, v.blobStore, legacyKey, primary)
	if err != nil {
		return CheckResult{Name: CheckDataFormat, Passed: false, Details: err.Error()}
	}

	total := 0
	for tableName, items := range payload {
		total += len(items)
		if v.cfg.TableAlias(tableName) != v.cfg.Store.Tables.Primary {
			continue
		}
		for i, item := range items {
			for _, attr := range v.cfg.Store.Tables.KeyAttributes {
				if _, present := item[attr]; !present {
					return CheckResult{
						Name:    CheckDataFormat,
						Passed:  false,
						Details: fmt.Sprintf("item %d in table %s is missing attribute %s", i, tableName, attr),
					}
				}
			}
		}
	}
	return CheckResult{
		Name:    CheckDataFormat,
		Passed:  true,
		Details: fmt.Sprintf("%d tables, %d items decoded", len(payload), total),
	}
}

func (v *Verifier) logReport(report *VerificationReport) {
	for _, check := range report.Checks {
		if !check.Passed {
			v.logger.WithFields(map[string]interface{}{
				"backup": report.BackupName,
				"check":  check.Name,
			}).Warn("Verification check failed: " + check.Details)
		}
	}
	v.logger.WithFields(map[string]interface{}{
		"backup": report.BackupName,
		"passed": report.Passed(),
	}).Info("Verification finished")
}
