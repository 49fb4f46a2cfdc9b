package backup

import (
	"context"
	"fmt"
	"time"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"
)

// Restorer writes backup data back into the store. Tables are restored
// independently: one failing table is recorded in the result and the run
// moves on to the next.
type Restorer struct {
	store     store.Client
	blobStore blob.Store
	chunks    *chunkReader
	cfg       *config.Config
	logger    *logging.Logger
}

// RestoreOptions adjusts one restore run
type RestoreOptions struct {
	// Tables restricts the run to the named tables, matched by alias or
	// physical name. Empty means every table in the backup.
	Tables []string
	// Overwrite replaces existing items. When false each item is written
	// conditionally and existing keys are skipped and counted.
	Overwrite bool
	// BatchSize caps how many items go to the store per write call.
	// Zero falls back to defaultRestoreBatchSize.
	BatchSize int
	// DryRun resolves and decodes everything but writes nothing
	DryRun bool
}

const defaultRestoreBatchSize = 25

// NewRestorer creates a restorer wired to the configured stores
func NewRestorer(storeClient store.Client, blobStore blob.Store, cfg *config.Config, logger *logging.Logger) (*Restorer, error) {
	cipher, err := NewChunkCipher(&cfg.Backup.Encryption)
	if err != nil {
		return nil, err
	}
	return &Restorer{
		store:     storeClient,
		blobStore: blobStore,
		chunks: &chunkReader{
			blobStore:   blobStore,
			compression: NewCompressionManager(),
			cipher:      cipher,
		},
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Restore writes the resolved backup into the current environment. Table
// names from the manifest are mapped through their alias, so a backup taken
// in one environment restores cleanly into another.
func (r *Restorer) Restore(ctx context.Context, resolved *Resolved, opts RestoreOptions) (*RestoreResult, error) {
	start := time.Now()

	var result *RestoreResult
	var err error
	switch {
	case resolved == nil:
		return nil, appErrors.NewValidationError("nothing to restore", nil)
	case resolved.Manifest != nil:
		result, err = r.restoreManifest(ctx, resolved.Manifest, opts)
	case resolved.LegacyKey != "":
		result, err = r.restoreLegacy(ctx, resolved.LegacyKey, opts)
	default:
		return nil, appErrors.NewValidationError("nothing to restore", nil)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	r.logger.WithFields(map[string]interface{}{
		"backup":   result.BackupName,
		"restored": result.TotalRestored(),
		"skipped":  result.TotalSkipped(),
		"dry_run":  result.DryRun,
		"failed":   result.Failed(),
	}).Info("Restore finished")
	return result, nil
}

func (r *Restorer) restoreManifest(ctx context.Context, manifest *Manifest, opts RestoreOptions) (*RestoreResult, error) {
	result := &RestoreResult{
		BackupName: manifest.BackupName,
		DryRun:     opts.DryRun,
		Tables:     make(map[string]*TableRestoreResult),
	}

	primary := r.cfg.TableName(r.cfg.Store.Tables.Primary)
	for _, sourceTable := range manifest.TableNames(primary) {
		info := manifest.Tables[sourceTable]
		alias := r.cfg.TableAlias(sourceTable)
		target := r.cfg.TableName(alias)
		if !tableSelected(opts.Tables, alias, target, sourceTable) {
			continue
		}

		tableResult := &TableRestoreResult{TableName: target}
		result.Tables[target] = tableResult
		r.restoreTableChunks(ctx, info, target, opts, tableResult)
	}
	return result, nil
}

// restoreTableChunks replays every chunk of one table. Failures land in
// the table result instead of aborting the run.
func (r *Restorer) restoreTableChunks(ctx context.Context, info *TableBackupInfo, target string, opts RestoreOptions, tableResult *TableRestoreResult) {
	hashKey, err := r.targetHashKey(ctx, target, opts.DryRun)
	if err != nil {
		tableResult.Error = err.Error()
		return
	}

	for _, file := range info.SortedFiles() {
		items, err := r.chunks.read(ctx, file)
		if err != nil {
			tableResult.Error = err.Error()
			return
		}
		if err := r.writeItems(ctx, target, hashKey, items, opts, tableResult); err != nil {
			tableResult.Error = err.Error()
			return
		}
	}
}

func (r *Restorer) restoreLegacy(ctx context.Context, legacyKey string, opts RestoreOptions) (*RestoreResult, error) {
	primary := r.cfg.TableName(r.cfg.Store.Tables.Primary)
	payload, err := ReadLegacyPayload(ctx, r.blobStore, legacyKey, primary)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		BackupName: legacyKey,
		DryRun:     opts.DryRun,
		Tables:     make(map[string]*TableRestoreResult),
	}

	for sourceTable, items := range payload {
		alias := r.cfg.TableAlias(sourceTable)
		target := r.cfg.TableName(alias)
		if !tableSelected(opts.Tables, alias, target, sourceTable) {
			continue
		}

		tableResult := &TableRestoreResult{TableName: target}
		result.Tables[target] = tableResult

		hashKey, err := r.targetHashKey(ctx, target, opts.DryRun)
		if err != nil {
			tableResult.Error = err.Error()
			continue
		}
		if err := r.writeItems(ctx, target, hashKey, items, opts, tableResult); err != nil {
			tableResult.Error = err.Error()
		}
	}
	return result, nil
}

// targetHashKey confirms the target table is usable and returns its hash
// key attribute, which guards conditional writes
func (r *Restorer) targetHashKey(ctx context.Context, target string, dryRun bool) (string, error) {
	desc, err := r.store.DescribeTable(ctx, target)
	if err != nil {
		return "", appErrors.WrapError(err, "target table "+target+" is not available")
	}
	if !dryRun && desc.Status != store.StatusActive {
		return "", appErrors.NewTransientStoreError(
			fmt.Sprintf("target table %s is %s, not active", target, desc.Status), nil)
	}
	if len(desc.KeyAttributes) == 0 {
		return "", appErrors.NewStorageError("target table "+target+" reports no key attributes", nil)
	}
	return desc.KeyAttributes[0], nil
}

// writeItems puts canonical items into the target table. Overwrite uses
// batch writes; the conditional path writes item by item and counts
// existing keys as skipped.
func (r *Restorer) writeItems(ctx context.Context, target, hashKey string, items []map[string]interface{}, opts RestoreOptions, tableResult *TableRestoreResult) error {
	if opts.DryRun {
		tableResult.Restored += int64(len(items))
		return nil
	}

	if opts.Overwrite {
		native := make([]store.Item, 0, len(items))
		for _, item := range items {
			converted, err := store.DenormalizeItem(item)
			if err != nil {
				return appErrors.NewIntegrityError("failed to convert item for table "+target, err)
			}
			native = append(native, converted)
		}
		batchSize := opts.BatchSize
		if batchSize <= 0 {
			batchSize = defaultRestoreBatchSize
		}
		for start := 0; start < len(native); start += batchSize {
			end := start + batchSize
			if end > len(native) {
				end = len(native)
			}
			if err := r.store.BatchWriteItems(ctx, target, native[start:end]); err != nil {
				return err
			}
			tableResult.Restored += int64(end - start)
		}
		return nil
	}

	for _, item := range items {
		converted, err := store.DenormalizeItem(item)
		if err != nil {
			return appErrors.NewIntegrityError("failed to convert item for table "+target, err)
		}
		written, err := r.store.PutItemIfAbsent(ctx, target, converted, hashKey)
		if err != nil {
			tableResult.Failed++
			return err
		}
		if written {
			tableResult.Restored++
		} else {
			tableResult.Skipped++
		}
	}
	return nil
}

func tableSelected(filters []string, names ...string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, filter := range filters {
		for _, name := range names {
			if filter == name {
				return true
			}
		}
	}
	return false
}
