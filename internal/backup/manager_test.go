package backup

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "dynamo-lifecycle/internal/errors"
)

func TestManager_CreateFullBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")
	seedRecordings(t, f.store, recordings, 0, 5, "2025-07-01T10:00:00Z")
	seedTokens(t, f.store, tokens, 3, "2025-07-02T09:30:00Z")

	result, err := f.manager.CreateFullBackup(ctx, "nightly")
	require.NoError(t, err)
	require.NotNil(t, result.Manifest)
	assert.False(t, result.Incremental)

	manifest := result.Manifest
	assert.Equal(t, "nightly", manifest.BackupName)
	assert.Equal(t, "dev", manifest.Environment)
	assert.WithinDuration(t, time.Now().UTC(), manifest.CreatedAt, time.Minute)
	require.NoError(t, manifest.Validate())

	recInfo := manifest.Tables[recordings]
	require.NotNil(t, recInfo)
	assert.Equal(t, int64(5), recInfo.ItemCount)
	require.Len(t, recInfo.Files, 3, "chunk size 2 splits 5 items into 3 chunks")
	for i, file := range recInfo.SortedFiles() {
		assert.Equal(t, i, file.ChunkIndex)
		assert.True(t, file.Compressed)
		assert.Contains(t, file.BlobKey, "/recordings/chunk-0000")
		assert.True(t, strings.HasSuffix(file.BlobKey, ".json.gz"), file.BlobKey)
	}

	tokInfo := manifest.Tables[tokens]
	require.NotNil(t, tokInfo)
	assert.Equal(t, int64(3), tokInfo.ItemCount)
	assert.Len(t, tokInfo.Files, 2)

	assert.Equal(t, int64(8), manifest.Statistics.TotalItems)
	assert.Equal(t, 5, manifest.Statistics.TotalFiles)

	// Everything the manifest references actually exists
	layout := f.manager.Layout()
	_, err = f.blobStore.Head(ctx, layout.ManifestKey("nightly"))
	require.NoError(t, err)
	for _, info := range manifest.Tables {
		for _, file := range info.Files {
			_, err := f.blobStore.Head(ctx, file.BlobKey)
			assert.NoError(t, err, file.BlobKey)
		}
	}

	// And the stored manifest reads back identically
	stored, err := ReadManifest(ctx, f.blobStore, layout.ManifestKey("nightly"))
	require.NoError(t, err)
	assert.Equal(t, manifest.Statistics, stored.Statistics)
	assert.Equal(t, manifest.Tables[recordings].ItemCount, stored.Tables[recordings].ItemCount)
}

func TestManager_CreateFullBackup_GeneratedName(t *testing.T) {
	f := newBackupFixture(t)

	result, err := f.manager.CreateFullBackup(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Manifest.BackupName, "backup-"))
}

func TestManager_CreateFullBackup_InvalidName(t *testing.T) {
	f := newBackupFixture(t)

	_, err := f.manager.CreateFullBackup(context.Background(), "bad/name")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestManager_CreateFullBackup_EmptyTable(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")
	seedRecordings(t, f.store, recordings, 0, 2, "2025-07-01T10:00:00Z")

	result, err := f.manager.CreateFullBackup(ctx, "sparse")
	require.NoError(t, err)

	tokInfo := result.Manifest.Tables[tokens]
	require.NotNil(t, tokInfo, "empty table keeps its manifest entry")
	assert.Equal(t, int64(0), tokInfo.ItemCount)
	assert.Empty(t, tokInfo.Files)

	assert.Equal(t, int64(2), result.Manifest.Statistics.TotalItems)
}

func TestManager_CreateFullBackup_PrimaryOnly(t *testing.T) {
	f := newBackupFixture(t)
	f.cfg.Backup.IncludeAux = false

	result, err := f.manager.CreateFullBackup(context.Background(), "primary-only")
	require.NoError(t, err)

	require.Len(t, result.Manifest.Tables, 1)
	assert.Contains(t, result.Manifest.Tables, f.cfg.TableName("recordings"))
}

func TestManager_ManifestIsWrittenLast(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")
	seedRecordings(t, f.store, recordings, 0, 3, "2025-07-01T10:00:00Z")

	// Killing the second table makes the run die after the first table's
	// chunks are already uploaded
	require.NoError(t, f.store.DeleteTable(ctx, tokens))

	_, err := f.manager.CreateFullBackup(ctx, "doomed")
	require.Error(t, err)

	layout := f.manager.Layout()
	_, err = f.blobStore.Head(ctx, layout.ManifestKey("doomed"))
	assert.True(t, appErrors.IsNotFound(err), "a failed run must not leave a manifest")

	// Orphan chunks may remain, and the backup stays invisible to listing
	summaries, err := f.manager.ListBackups(ctx)
	require.NoError(t, err)
	for _, summary := range summaries {
		assert.NotEqual(t, "doomed", summary.BackupName)
	}
}

func TestManager_CreateIncrementalBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	recordings := f.cfg.TableName("recordings")
	seedRecordings(t, f.store, recordings, 0, 3, "2025-06-30T23:59:59Z")
	seedRecordings(t, f.store, recordings, 10, 2, "2025-07-02T12:00:00Z")
	// Exactly at the boundary, which is inclusive
	seedRecordings(t, f.store, recordings, 20, 1, "2025-07-01T00:00:00Z")
	// Aux items exist but none of them changed since the cutoff
	seedTokens(t, f.store, f.cfg.TableName("tokens"), 2, "2025-06-15T00:00:00Z")

	since := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	result, err := f.manager.CreateIncrementalBackup(ctx, "delta", since)
	require.NoError(t, err)
	assert.True(t, result.Incremental)
	assert.Equal(t, since, result.Since)

	recInfo := result.Manifest.Tables[recordings]
	require.NotNil(t, recInfo)
	assert.Equal(t, int64(3), recInfo.ItemCount, "two changed plus the boundary item")
	require.Len(t, recInfo.Files, 1, "incremental backups collapse into one chunk")
	assert.Equal(t, 3, recInfo.Files[0].ItemCount)

	// The aux table has items, but none changed, so it keeps an empty
	// marker entry instead of disappearing from the manifest
	tokInfo := result.Manifest.Tables[f.cfg.TableName("tokens")]
	require.NotNil(t, tokInfo)
	assert.Equal(t, int64(0), tokInfo.ItemCount)
	assert.Empty(t, tokInfo.Files)
}

func TestManager_CreateIncrementalBackup_ZeroSince(t *testing.T) {
	f := newBackupFixture(t)

	_, err := f.manager.CreateIncrementalBackup(context.Background(), "delta", time.Time{})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestManager_ListBackups(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	seedRecordings(t, f.store, f.cfg.TableName("recordings"), 0, 2, "2025-07-01T10:00:00Z")

	_, err := f.manager.CreateFullBackup(ctx, "earlier")
	require.NoError(t, err)
	_, err = f.manager.CreateFullBackup(ctx, "later")
	require.NoError(t, err)

	// A damaged manifest must not hide the healthy backups
	brokenKey := f.manager.Layout().ManifestKey("broken")
	require.NoError(t, f.blobStore.Put(ctx, brokenKey, []byte("{not json"), "application/json"))

	summaries, err := f.manager.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "later", summaries[0].BackupName)
	assert.Equal(t, "earlier", summaries[1].BackupName)
	assert.Equal(t, int64(2), summaries[0].TotalItems)
	assert.Equal(t, "dev", summaries[0].Environment)
}

func TestManager_ListBackups_Empty(t *testing.T) {
	f := newBackupFixture(t)

	summaries, err := f.manager.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestManager_ResolveBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	seedRecordings(t, f.store, f.cfg.TableName("recordings"), 0, 1, "2025-07-01T10:00:00Z")
	_, err := f.manager.CreateFullBackup(ctx, "findme")
	require.NoError(t, err)

	// By bare name within the environment
	resolved, err := f.manager.ResolveBackup(ctx, "findme")
	require.NoError(t, err)
	require.NotNil(t, resolved.Manifest)
	assert.Equal(t, "findme", resolved.Manifest.BackupName)

	// By explicit blob path
	resolved, err = f.manager.ResolveBackup(ctx, f.manager.Layout().BackupPrefix("findme"))
	require.NoError(t, err)
	require.NotNil(t, resolved.Manifest)

	_, err = f.manager.ResolveBackup(ctx, "no-such-backup")
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))

	_, err = f.manager.ResolveBackup(ctx, "")
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}
