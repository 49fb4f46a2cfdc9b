package backup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"
	"dynamo-lifecycle/internal/worker"
)

// TableExporter exports one table into chunk files. The table is scanned
// in parallel segments whose results land in a single collector, then the
// collected items are canonicalized, sliced into fixed-size chunks, and
// uploaded. The caller writes the manifest afterwards, never the exporter.
type TableExporter struct {
	store       store.Client
	blobStore   blob.Store
	compression *CompressionManager
	cipher      *ChunkCipher
	pool        *worker.Pool
	retry       *appErrors.RetryHandler
	logger      *logging.Logger

	chunkSize int
	codec     string
	level     int
	alias     func(tableName string) string
}

// ExportOptions adjusts one export run
type ExportOptions struct {
	// Filter keeps only items whose attribute is at or above a bound,
	// which is how incremental backups select changed items
	Filter *store.ScanFilter
	// SingleChunk collapses the export into one chunk file regardless of
	// the configured chunk size
	SingleChunk bool
}

// NewTableExporter creates an exporter wired to the configured stores
func NewTableExporter(storeClient store.Client, blobStore blob.Store, cfg *config.Config, logger *logging.Logger) (*TableExporter, error) {
	cipher, err := NewChunkCipher(&cfg.Backup.Encryption)
	if err != nil {
		return nil, err
	}

	codec := CodecNone
	if cfg.Backup.Compression.Enabled {
		codec = cfg.Backup.Compression.Codec
	}

	return &TableExporter{
		store:       storeClient,
		blobStore:   blobStore,
		compression: NewCompressionManager(),
		cipher:      cipher,
		pool:        worker.NewPool(cfg.Backup.Workers),
		retry:       appErrors.NewRetryHandler(appErrors.DefaultRetryConfig()),
		logger:      logger,
		chunkSize:   cfg.Backup.ChunkSize,
		codec:       codec,
		level:       cfg.Backup.Compression.Level,
		alias:       cfg.TableAlias,
	}, nil
}

// Export scans tableName and uploads its chunk files for the named backup.
// A table with nothing to export returns an entry with a zero item count
// and no files.
func (e *TableExporter) Export(ctx context.Context, tableName string, layout Layout, backupName string, opts ExportOptions) (*TableBackupInfo, error) {
	start := time.Now()

	desc, err := e.store.DescribeTable(ctx, tableName)
	if err != nil {
		return nil, err
	}

	items, err := e.collect(ctx, tableName, opts.Filter)
	if err != nil {
		e.logger.LogTableExport(tableName, 0, 0, time.Since(start), err)
		return nil, err
	}

	info := &TableBackupInfo{
		TableName: tableName,
		ItemCount: int64(len(items)),
		TableMetadata: TableMetadata{
			Status:              desc.Status,
			ItemCountAtSnapshot: desc.ItemCount,
			SizeBytes:           desc.SizeBytes,
		},
	}
	if len(items) == 0 {
		e.logger.LogTableExport(tableName, 0, 0, time.Since(start), nil)
		return info, nil
	}

	chunkSize := e.chunkSize
	if opts.SingleChunk {
		chunkSize = len(items)
	}

	extension := ChunkExtension(e.codec, e.cipher.Enabled())
	tableAlias := e.alias(tableName)

	for chunkIndex, offset := 0, 0; offset < len(items); chunkIndex, offset = chunkIndex+1, offset+chunkSize {
		end := offset + chunkSize
		if end > len(items) {
			end = len(items)
		}

		key := layout.ChunkKey(backupName, tableAlias, chunkIndex, extension)
		if err := e.uploadChunk(ctx, key, items[offset:end]); err != nil {
			e.logger.LogTableExport(tableName, int64(len(items)), chunkIndex, time.Since(start), err)
			return nil, err
		}

		info.Files = append(info.Files, ChunkFileRef{
			BlobKey:    key,
			ChunkIndex: chunkIndex,
			ItemCount:  end - offset,
			Compressed: e.codec != CodecNone,
		})
	}

	e.logger.LogTableExport(tableName, info.ItemCount, len(info.Files), time.Since(start), nil)
	return info, nil
}

// collect runs the parallel segment scan. Every worker appends its
// canonicalized items to one shared slice under the collector lock.
func (e *TableExporter) collect(ctx context.Context, tableName string, filter *store.ScanFilter) ([]map[string]interface{}, error) {
	var mu sync.Mutex
	var collected []map[string]interface{}

	segments := e.pool.Workers()
	err := e.pool.Run(ctx, func(workCtx context.Context, segment int) error {
		items, err := e.store.ScanSegment(workCtx, tableName, segment, segments, filter)
		if err != nil {
			return err
		}

		canonical := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			canonical = append(canonical, store.CanonicalizeItem(item))
		}

		mu.Lock()
		collected = append(collected, canonical...)
		mu.Unlock()

		e.logger.WithFields(map[string]interface{}{
			"table":   tableName,
			"segment": segment,
			"items":   len(items),
		}).Debug("Segment scan finished")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return collected, nil
}

// uploadChunk serializes, compresses, encrypts, and uploads one chunk.
// Uploads go through the retry handler so a throttled blob write does not
// fail the whole export.
func (e *TableExporter) uploadChunk(ctx context.Context, key string, items []map[string]interface{}) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return appErrors.NewStorageError("failed to serialize chunk", err)
	}

	compressed, stats, err := e.compression.Compress(payload, e.codec, e.level)
	if err != nil {
		return err
	}
	if stats.Codec != CodecNone {
		e.logger.WithFields(map[string]interface{}{
			"key":   key,
			"codec": stats.Codec,
			"ratio": stats.Ratio,
		}).Debug("Compressed chunk")
	}

	sealed, err := e.cipher.Encrypt(compressed)
	if err != nil {
		return err
	}

	return e.retry.Retry(ctx, func() error {
		return e.blobStore.Put(ctx, key, sealed, manifestContentType)
	})
}
