package backup

import (
	"context"
	"sort"
	"strings"
	"time"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"
)

// Manager drives backup creation, listing, and lookup for one environment
type Manager struct {
	store     store.Client
	blobStore blob.Store
	exporter  *TableExporter
	cfg       *config.Config
	logger    *logging.Logger
	layout    Layout
}

// NewManager creates a backup manager wired to the configured stores
func NewManager(storeClient store.Client, blobStore blob.Store, cfg *config.Config, logger *logging.Logger) (*Manager, error) {
	exporter, err := NewTableExporter(storeClient, blobStore, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:     storeClient,
		blobStore: blobStore,
		exporter:  exporter,
		cfg:       cfg,
		logger:    logger,
		layout: Layout{
			Prefix:      cfg.Blob.Prefix,
			Environment: cfg.Environment,
		},
	}, nil
}

// Layout exposes the blob layout this manager writes and reads
func (m *Manager) Layout() Layout {
	return m.layout
}

// backupTables returns the physical tables covered by a backup, primary
// first. Auxiliary tables join when configured.
func (m *Manager) backupTables() []string {
	tables := []string{m.cfg.TableName(m.cfg.Store.Tables.Primary)}
	if m.cfg.Backup.IncludeAux {
		for _, alias := range m.cfg.Store.Tables.Aux {
			tables = append(tables, m.cfg.TableName(alias))
		}
	}
	return tables
}

func validateBackupName(name string) error {
	if name == "" {
		return appErrors.NewValidationError("backup name must not be empty", nil)
	}
	if strings.ContainsAny(name, "/\\") {
		return appErrors.NewValidationError("backup name must not contain path separators: "+name, nil)
	}
	return nil
}

// CreateFullBackup exports every covered table and writes the manifest.
// An empty name is replaced with a generated one. The manifest goes up
// last, so an export that dies half way leaves orphan chunks but never a
// manifest that points at missing data.
func (m *Manager) CreateFullBackup(ctx context.Context, name string) (*Result, error) {
	return m.createBackup(ctx, name, ExportOptions{}, time.Time{})
}

// CreateIncrementalBackup exports only items whose modified attribute is at
// or after since. Each table lands in a single chunk; tables without
// changes keep an empty entry in the manifest.
func (m *Manager) CreateIncrementalBackup(ctx context.Context, name string, since time.Time) (*Result, error) {
	if since.IsZero() {
		return nil, appErrors.NewValidationError("incremental backup requires a since time", nil)
	}
	opts := ExportOptions{
		Filter: &store.ScanFilter{
			Attribute: m.cfg.Backup.ModifiedAttribute,
			MinValue:  store.StringAttr(since.UTC().Format(time.RFC3339)),
		},
		SingleChunk: true,
	}
	return m.createBackup(ctx, name, opts, since)
}

func (m *Manager) createBackup(ctx context.Context, name string, opts ExportOptions, since time.Time) (*Result, error) {
	start := time.Now()
	if name == "" {
		name = GenerateBackupName()
	}
	if err := validateBackupName(name); err != nil {
		return nil, err
	}

	incremental := opts.Filter != nil
	m.logger.WithFields(map[string]interface{}{
		"backup":      name,
		"environment": m.cfg.Environment,
		"incremental": incremental,
	}).Info("Starting backup")

	manifest := &Manifest{
		BackupName:  name,
		Environment: m.cfg.Environment,
		CreatedAt:   time.Now().UTC(),
		Tables:      make(map[string]*TableBackupInfo),
		Location: ManifestLocation{
			BlobPrefix:  m.layout.BackupPrefix(name),
			ManifestKey: m.layout.ManifestKey(name),
		},
	}

	for _, tableName := range m.backupTables() {
		info, err := m.exporter.Export(ctx, tableName, m.layout, name, opts)
		if err != nil {
			return nil, appErrors.WrapError(err, "failed to export table "+tableName)
		}
		manifest.Tables[tableName] = info
		manifest.Statistics.TotalItems += info.ItemCount
		manifest.Statistics.TotalFiles += len(info.Files)
	}

	if err := WriteManifest(ctx, m.blobStore, manifest); err != nil {
		return nil, appErrors.WrapError(err, "failed to write manifest")
	}

	duration := time.Since(start)
	m.logger.WithFields(map[string]interface{}{
		"backup":   name,
		"items":    manifest.Statistics.TotalItems,
		"files":    manifest.Statistics.TotalFiles,
		"duration": duration.String(),
	}).Info("Backup finished")

	return &Result{
		Manifest:    manifest,
		Duration:    duration,
		Incremental: incremental,
		Since:       since,
	}, nil
}

// ListBackups returns the backups of this environment, newest first.
// Manifests that cannot be read or parsed are skipped with a warning so
// one damaged backup does not hide the rest.
func (m *Manager) ListBackups(ctx context.Context) ([]Summary, error) {
	objects, err := m.blobStore.List(ctx, m.layout.EnvironmentPrefix())
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	for _, object := range objects {
		if !strings.HasSuffix(object.Key, "/"+manifestFileName) &&
			!strings.HasSuffix(object.Key, "/"+manifestFileNameGz) {
			continue
		}

		manifest, err := ReadManifest(ctx, m.blobStore, object.Key)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"key":   object.Key,
				"error": err.Error(),
			}).Warn("Skipping unreadable manifest")
			continue
		}
		summaries = append(summaries, manifest.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// ResolveBackup locates a backup by bare name within this environment, or
// by explicit blob path when the argument contains a separator
func (m *Manager) ResolveBackup(ctx context.Context, nameOrPath string) (*Resolved, error) {
	if nameOrPath == "" {
		return nil, appErrors.NewValidationError("backup name or path is required", nil)
	}
	blobPath := nameOrPath
	if !strings.Contains(nameOrPath, "/") {
		blobPath = m.layout.BackupPrefix(nameOrPath)
	}
	return Resolve(ctx, m.blobStore, blobPath)
}
