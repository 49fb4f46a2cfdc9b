package backup

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/store"
)

func newTestExporter(t *testing.T, f *backupFixture) *TableExporter {
	t.Helper()
	exporter, err := NewTableExporter(f.store, f.blobStore, f.cfg, testLogger())
	require.NoError(t, err)
	return exporter
}

func TestTableExporter_ChunkKeysUseAlias(t *testing.T) {
	f := newBackupFixture(t)
	recordings := f.cfg.TableName("recordings")
	seedRecordings(t, f.store, recordings, 0, 3, "2025-07-01T10:00:00Z")

	info, err := newTestExporter(t, f).Export(context.Background(), recordings, f.manager.Layout(), "aliased", ExportOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, info.Files)
	for _, file := range info.Files {
		assert.Contains(t, file.BlobKey, "/recordings/chunk-")
		assert.NotContains(t, file.BlobKey, "recordings-dev",
			"chunk paths must stay environment free")
	}
}

func TestTableExporter_SingleChunkWithFilter(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	seedRecordings(t, f.store, recordings, 0, 5, "2025-06-01T00:00:00Z")
	seedRecordings(t, f.store, recordings, 10, 3, "2025-07-15T00:00:00Z")

	opts := ExportOptions{
		Filter: &store.ScanFilter{
			Attribute: "updatedAt",
			MinValue:  store.StringAttr("2025-07-01T00:00:00Z"),
		},
		SingleChunk: true,
	}
	info, err := newTestExporter(t, f).Export(ctx, recordings, f.manager.Layout(), "delta", opts)
	require.NoError(t, err)

	assert.Equal(t, int64(3), info.ItemCount)
	require.Len(t, info.Files, 1, "the chunk size limit does not apply")
	assert.Equal(t, 3, info.Files[0].ItemCount)
}

func TestTableExporter_TableMetadataSnapshot(t *testing.T) {
	f := newBackupFixture(t)
	recordings := f.cfg.TableName("recordings")
	seedRecordings(t, f.store, recordings, 0, 4, "2025-07-01T10:00:00Z")

	info, err := newTestExporter(t, f).Export(context.Background(), recordings, f.manager.Layout(), "meta", ExportOptions{})
	require.NoError(t, err)

	assert.Equal(t, recordings, info.TableName)
	assert.Equal(t, store.StatusActive, info.TableMetadata.Status)
	assert.Equal(t, int64(4), info.TableMetadata.ItemCountAtSnapshot)
}

func TestTableExporter_UnknownTable(t *testing.T) {
	f := newBackupFixture(t)

	_, err := newTestExporter(t, f).Export(context.Background(), "missing-dev", f.manager.Layout(), "nope", ExportOptions{})
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestTableExporter_UncompressedChunks(t *testing.T) {
	f := newBackupFixture(t)
	f.cfg.Backup.Compression.Enabled = false
	recordings := f.cfg.TableName("recordings")
	seedRecordings(t, f.store, recordings, 0, 2, "2025-07-01T10:00:00Z")

	info, err := newTestExporter(t, f).Export(context.Background(), recordings, f.manager.Layout(), "plain", ExportOptions{})
	require.NoError(t, err)

	require.NotEmpty(t, info.Files)
	for _, file := range info.Files {
		assert.False(t, file.Compressed)
		assert.True(t, strings.HasSuffix(file.BlobKey, ".json"), file.BlobKey)
	}
}
