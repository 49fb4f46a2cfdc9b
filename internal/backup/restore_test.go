package backup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/store"
)

func newTestRestorer(t *testing.T, f *backupFixture) *Restorer {
	t.Helper()
	restorer, err := NewRestorer(f.store, f.blobStore, f.cfg, testLogger())
	require.NoError(t, err)
	return restorer
}

func createAndResolve(t *testing.T, f *backupFixture, name string) *Resolved {
	t.Helper()
	ctx := context.Background()
	_, err := f.manager.CreateFullBackup(ctx, name)
	require.NoError(t, err)
	resolved, err := f.manager.ResolveBackup(ctx, name)
	require.NoError(t, err)
	return resolved
}

func wipeTables(t *testing.T, f *backupFixture) {
	t.Helper()
	ctx := context.Background()
	aliases := append([]string{f.cfg.Store.Tables.Primary}, f.cfg.Store.Tables.Aux...)
	for _, alias := range aliases {
		require.NoError(t, f.store.DeleteTable(ctx, f.cfg.TableName(alias)))
	}
	createAppTables(t, f.store, f.cfg)
}

func TestRestorer_RoundTrip(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")

	seedRecordings(t, f.store, recordings, 0, 5, "2025-07-01T10:00:00Z")
	seedTokens(t, f.store, tokens, 3, "2025-07-02T09:30:00Z")
	resolved := createAndResolve(t, f, "roundtrip")

	wipeTables(t, f)
	require.Zero(t, countItems(t, f.store, recordings))

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, int64(5), result.Tables[recordings].Restored)
	assert.Equal(t, int64(3), result.Tables[tokens].Restored)
	assert.Equal(t, int64(8), result.TotalRestored())

	assert.Equal(t, 5, countItems(t, f.store, recordings))
	assert.Equal(t, 3, countItems(t, f.store, tokens))

	// Numeric attributes survive the trip byte for byte
	item, err := f.store.GetItem(ctx, recordings, store.Item{
		"pk": store.StringAttr("rec-000"),
		"ts": store.StringAttr("2025-07-01T08:00:00Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NotNil(t, item["durationSec"].N)
	assert.Equal(t, "187.5", *item["durationSec"].N)
	assert.Equal(t, "transcoded", *item["status"].S)
}

func TestRestorer_NoOverwriteSkipsExisting(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	seedRecordings(t, f.store, recordings, 0, 3, "2025-07-01T10:00:00Z")
	resolved := createAndResolve(t, f, "conflicts")

	// One item disappears, another one diverges after the backup
	require.NoError(t, f.store.DeleteItem(ctx, recordings, store.Item{
		"pk": store.StringAttr("rec-000"),
		"ts": store.StringAttr("2025-07-01T08:00:00Z"),
	}))
	diverged := store.Item{
		"pk":        store.StringAttr("rec-001"),
		"ts":        store.StringAttr("2025-07-01T08:01:00Z"),
		"status":    store.StringAttr("archived"),
		"updatedAt": store.StringAttr("2025-08-01T00:00:00Z"),
	}
	require.NoError(t, f.store.PutItem(ctx, recordings, diverged))

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)

	recResult := result.Tables[recordings]
	assert.Equal(t, int64(1), recResult.Restored, "only the deleted item comes back")
	assert.Equal(t, int64(2), recResult.Skipped)

	// The diverged item kept its live state
	item, err := f.store.GetItem(ctx, recordings, store.Item{
		"pk": store.StringAttr("rec-001"),
		"ts": store.StringAttr("2025-07-01T08:01:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "archived", *item["status"].S)
}

func TestRestorer_OverwriteReplaces(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	seedRecordings(t, f.store, recordings, 0, 3, "2025-07-01T10:00:00Z")
	resolved := createAndResolve(t, f, "overwrite")

	diverged := store.Item{
		"pk":        store.StringAttr("rec-001"),
		"ts":        store.StringAttr("2025-07-01T08:01:00Z"),
		"status":    store.StringAttr("archived"),
		"updatedAt": store.StringAttr("2025-08-01T00:00:00Z"),
	}
	require.NoError(t, f.store.PutItem(ctx, recordings, diverged))

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Tables[recordings].Restored)
	assert.Zero(t, result.Tables[recordings].Skipped)

	item, err := f.store.GetItem(ctx, recordings, store.Item{
		"pk": store.StringAttr("rec-001"),
		"ts": store.StringAttr("2025-07-01T08:01:00Z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "transcoded", *item["status"].S, "backup state replaces the live item")
}

func TestRestorer_DryRun(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	seedRecordings(t, f.store, recordings, 0, 4, "2025-07-01T10:00:00Z")
	resolved := createAndResolve(t, f, "preview")
	wipeTables(t, f)

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, int64(4), result.Tables[recordings].Restored)

	assert.Zero(t, countItems(t, f.store, recordings), "dry run writes nothing")
}

func TestRestorer_TableFilter(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")

	seedRecordings(t, f.store, recordings, 0, 2, "2025-07-01T10:00:00Z")
	seedTokens(t, f.store, tokens, 2, "2025-07-02T09:30:00Z")
	resolved := createAndResolve(t, f, "filtered")
	wipeTables(t, f)

	// Filter by alias
	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{Tables: []string{"recordings"}})
	require.NoError(t, err)
	require.Contains(t, result.Tables, recordings)
	assert.NotContains(t, result.Tables, tokens)
	assert.Equal(t, 2, countItems(t, f.store, recordings))
	assert.Zero(t, countItems(t, f.store, tokens))

	// Filter by physical name
	result, err = newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{Tables: []string{tokens}})
	require.NoError(t, err)
	require.Contains(t, result.Tables, tokens)
	assert.NotContains(t, result.Tables, recordings)
	assert.Equal(t, 2, countItems(t, f.store, tokens))
}

func TestRestorer_CrossEnvironment(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()

	seedRecordings(t, f.store, f.cfg.TableName("recordings"), 0, 3, "2025-07-01T10:00:00Z")
	_, err := f.manager.CreateFullBackup(ctx, "xenv")
	require.NoError(t, err)
	devPrefix := f.manager.Layout().BackupPrefix("xenv")

	// A staging deployment sharing the same blob bucket
	stagingCfg := testConfig(t, f.cfg.Blob.Local.BasePath)
	stagingCfg.Environment = config.EnvStaging
	stagingStore := store.NewMemoryStore()
	createAppTables(t, stagingStore, stagingCfg)

	stagingManager, err := NewManager(stagingStore, f.blobStore, stagingCfg, testLogger())
	require.NoError(t, err)
	resolved, err := stagingManager.ResolveBackup(ctx, devPrefix)
	require.NoError(t, err)

	restorer, err := NewRestorer(stagingStore, f.blobStore, stagingCfg, testLogger())
	require.NoError(t, err)
	result, err := restorer.Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed())

	// The dev backup lands in the staging tables
	require.Contains(t, result.Tables, "recordings-staging")
	assert.Equal(t, int64(3), result.Tables["recordings-staging"].Restored)
	assert.Equal(t, 3, countItems(t, stagingStore, "recordings-staging"))
}

func TestRestorer_PartialFailure(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")

	seedRecordings(t, f.store, recordings, 0, 4, "2025-07-01T10:00:00Z")
	seedTokens(t, f.store, tokens, 2, "2025-07-02T09:30:00Z")
	resolved := createAndResolve(t, f, "partial")
	wipeTables(t, f)

	// Losing a chunk fails that table, not the whole run
	firstChunk := resolved.Manifest.Tables[recordings].SortedFiles()[0]
	require.NoError(t, f.blobStore.Delete(ctx, []string{firstChunk.BlobKey}))

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err, "table failures live in the result")
	assert.True(t, result.Failed())

	assert.NotEmpty(t, result.Tables[recordings].Error)
	assert.Empty(t, result.Tables[tokens].Error)
	assert.Equal(t, int64(2), result.Tables[tokens].Restored)
	assert.Equal(t, 2, countItems(t, f.store, tokens))
}

func TestRestorer_MissingTargetTable(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")
	tokens := f.cfg.TableName("tokens")

	seedRecordings(t, f.store, recordings, 0, 2, "2025-07-01T10:00:00Z")
	seedTokens(t, f.store, tokens, 2, "2025-07-02T09:30:00Z")
	resolved := createAndResolve(t, f, "notable")

	require.NoError(t, f.store.DeleteTable(ctx, tokens))

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{Overwrite: true})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Tables[tokens].Error, tokens)
	assert.Equal(t, int64(2), result.Tables[recordings].Restored)
}

func TestRestorer_LegacyMapPayload(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	payload := []byte(`{"recordings-dev":[` +
		`{"pk":"rec-900","ts":"2025-05-01T00:00:00Z","status":"transcoded","durationSec":42.5},` +
		`{"pk":"rec-901","ts":"2025-05-01T00:01:00Z","status":"uploaded","durationSec":9007199254740993}]}`)
	require.NoError(t, f.blobStore.Put(ctx, "backups/dev/legacy-map/data.json", payload, "application/json"))

	resolved, err := f.manager.ResolveBackup(ctx, "legacy-map")
	require.NoError(t, err)
	assert.Nil(t, resolved.Manifest)
	assert.NotEmpty(t, resolved.LegacyKey)

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, int64(2), result.Tables[recordings].Restored)

	// Numbers too large for float64 come through intact
	item, err := f.store.GetItem(ctx, recordings, store.Item{
		"pk": store.StringAttr("rec-901"),
		"ts": store.StringAttr("2025-05-01T00:01:00Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "9007199254740993", *item["durationSec"].N)
}

func TestRestorer_LegacyArrayPayload(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	raw := []byte(`[{"pk":"rec-950","ts":"2025-05-02T00:00:00Z","status":"uploaded"}]`)
	compressed, _, err := NewCompressionManager().Compress(raw, CodecGzip, 0)
	require.NoError(t, err)
	require.NoError(t, f.blobStore.Put(ctx, "backups/dev/legacy-array/data.json.gz", compressed, "application/json"))

	resolved, err := f.manager.ResolveBackup(ctx, "legacy-array")
	require.NoError(t, err)
	require.NotEmpty(t, resolved.LegacyKey)

	result, err := newTestRestorer(t, f).Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)

	// A bare array belongs to the primary table
	require.Contains(t, result.Tables, recordings)
	assert.Equal(t, int64(1), result.Tables[recordings].Restored)
	assert.Equal(t, 1, countItems(t, f.store, recordings))
}

func TestRestorer_EncryptedBackup(t *testing.T) {
	f := newBackupFixture(t)
	ctx := context.Background()
	recordings := f.cfg.TableName("recordings")

	f.cfg.Backup.Encryption = config.EncryptionConfig{Enabled: true, Passphrase: "backup passphrase"}
	encManager, err := NewManager(f.store, f.blobStore, f.cfg, testLogger())
	require.NoError(t, err)

	seedRecordings(t, f.store, recordings, 0, 2, "2025-07-01T10:00:00Z")
	_, err = encManager.CreateFullBackup(ctx, "sealed")
	require.NoError(t, err)

	resolved, err := encManager.ResolveBackup(ctx, "sealed")
	require.NoError(t, err)
	for _, file := range resolved.Manifest.Tables[recordings].Files {
		assert.Contains(t, file.BlobKey, ".enc")
	}

	wipeTables(t, f)

	// Without the passphrase the table fails, with it the restore succeeds
	plainCfg := *f.cfg
	plainCfg.Backup.Encryption = config.EncryptionConfig{}
	plainRestorer, err := NewRestorer(f.store, f.blobStore, &plainCfg, testLogger())
	require.NoError(t, err)
	result, err := plainRestorer.Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Tables[recordings].Error, "passphrase")

	sealedRestorer := newTestRestorer(t, f)
	result, err = sealedRestorer.Restore(ctx, resolved, RestoreOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, 2, countItems(t, f.store, recordings))
}
