package backup

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"
)

// testConfig builds a dev configuration backed by the in-process store and
// a local blob directory
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Environment: config.EnvDev,
		Store: config.StoreConfig{
			Endpoint: "memory",
		},
		Blob: config.BlobConfig{
			Provider: "local",
			Prefix:   "backups",
			Local:    &config.LocalConfig{BasePath: dir},
		},
		Backup: config.BackupConfig{
			Workers:    2,
			ChunkSize:  2,
			IncludeAux: true,
		},
	}
	cfg.SetDefaults()
	return cfg
}

func testLogger() *logging.Logger {
	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: io.Discard,
		Format: "text",
	})
	if err != nil {
		panic(err)
	}
	return logger
}

type backupFixture struct {
	cfg       *config.Config
	store     *store.MemoryStore
	blobStore blob.Store
	manager   *Manager
}

func newBackupFixture(t *testing.T) *backupFixture {
	t.Helper()

	cfg := testConfig(t, t.TempDir())
	memStore := store.NewMemoryStore()
	createAppTables(t, memStore, cfg)

	blobStore, err := blob.NewStore(context.Background(), &cfg.Blob, testLogger())
	require.NoError(t, err)

	manager, err := NewManager(memStore, blobStore, cfg, testLogger())
	require.NoError(t, err)

	return &backupFixture{
		cfg:       cfg,
		store:     memStore,
		blobStore: blobStore,
		manager:   manager,
	}
}

func createAppTables(t *testing.T, memStore *store.MemoryStore, cfg *config.Config) {
	t.Helper()

	ctx := context.Background()
	aliases := append([]string{cfg.Store.Tables.Primary}, cfg.Store.Tables.Aux...)
	for _, alias := range aliases {
		schema := store.TableSchema{
			Name:     cfg.TableName(alias),
			HashKey:  store.KeyDefinition{Name: "pk", Type: "S"},
			RangeKey: &store.KeyDefinition{Name: "ts", Type: "S"},
		}
		require.NoError(t, memStore.CreateTable(ctx, schema))
	}
}

func seedRecordings(t *testing.T, memStore *store.MemoryStore, table string, start, count int, updatedAt string) {
	t.Helper()

	ctx := context.Background()
	for i := start; i < start+count; i++ {
		item := store.Item{
			"pk":          store.StringAttr(fmt.Sprintf("rec-%03d", i)),
			"ts":          store.StringAttr(fmt.Sprintf("2025-07-01T08:%02d:00Z", i%60)),
			"status":      store.StringAttr("transcoded"),
			"durationSec": store.NumberAttr("187.5"),
			"updatedAt":   store.StringAttr(updatedAt),
		}
		require.NoError(t, memStore.PutItem(ctx, table, item))
	}
}

func seedTokens(t *testing.T, memStore *store.MemoryStore, table string, count int, updatedAt string) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < count; i++ {
		item := store.Item{
			"pk":        store.StringAttr(fmt.Sprintf("tok-%03d", i)),
			"ts":        store.StringAttr(fmt.Sprintf("2025-07-02T09:%02d:00Z", i%60)),
			"updatedAt": store.StringAttr(updatedAt),
		}
		require.NoError(t, memStore.PutItem(ctx, table, item))
	}
}

func countItems(t *testing.T, memStore *store.MemoryStore, table string) int {
	t.Helper()

	total := 0
	for segment := 0; segment < 4; segment++ {
		items, err := memStore.ScanSegment(context.Background(), table, segment, 4, nil)
		require.NoError(t, err)
		total += len(items)
	}
	return total
}
