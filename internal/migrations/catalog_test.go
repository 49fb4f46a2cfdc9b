package migrations

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

func testCatalogConfig() *config.Config {
	cfg := &config.Config{
		Environment: config.EnvDev,
		Store:       config.StoreConfig{Endpoint: "memory"},
	}
	cfg.SetDefaults()
	return cfg
}

func newCatalogRunner(t *testing.T) (*migrate.Runner, *store.MemoryStore, *config.Config) {
	t.Helper()

	registry, err := NewRegistry()
	require.NoError(t, err)

	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: io.Discard,
		Format: "text",
	})
	require.NoError(t, err)

	memStore := store.NewMemoryStore()
	cfg := testCatalogConfig()
	runner, err := migrate.NewRunner(memStore, registry, cfg, logger)
	require.NoError(t, err)
	return runner, memStore, cfg
}

func TestCatalog_RegistersAllUnits(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	var versions []string
	for _, unit := range registry.Units() {
		versions = append(versions, unit.Version)
	}
	assert.Equal(t, []string{
		"20250601120000",
		"20250614083000",
		"20250701101500",
		"20250805164500",
	}, versions)
}

func TestCatalog_UpCreatesSchema(t *testing.T) {
	runner, memStore, cfg := newCatalogRunner(t)
	ctx := context.Background()

	result, err := runner.Up(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Changed())

	recordings, err := memStore.DescribeTable(ctx, cfg.TableName("recordings"))
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, recordings.Status)
	assert.Equal(t, []string{"pk", "ts"}, recordings.KeyAttributes)
	require.Len(t, recordings.Indexes, 1)
	assert.Equal(t, "status-index", recordings.Indexes[0].Name)

	tokens, err := memStore.DescribeTable(ctx, cfg.TableName("tokens"))
	require.NoError(t, err)
	assert.Equal(t, []string{"pk"}, tokens.KeyAttributes)
}

func TestCatalog_UpToleratesPreexistingTable(t *testing.T) {
	runner, memStore, cfg := newCatalogRunner(t)
	ctx := context.Background()

	// A table created out of band must not break the schema units
	schema := store.TableSchema{
		Name:     cfg.TableName("recordings"),
		HashKey:  store.KeyDefinition{Name: "pk", Type: "S"},
		RangeKey: &store.KeyDefinition{Name: "ts", Type: "S"},
	}
	require.NoError(t, memStore.CreateTable(ctx, schema))

	result, err := runner.Up(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Changed())

	applied, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 4)
}

func TestCatalog_BackfillSetsMissingDuration(t *testing.T) {
	runner, memStore, cfg := newCatalogRunner(t)
	ctx := context.Background()
	table := cfg.TableName("recordings")

	_, err := runner.Up(ctx, "20250701101500")
	require.NoError(t, err)

	legacy := store.Item{
		"pk":     store.StringAttr("rec-001"),
		"ts":     store.StringAttr("2025-05-01T10:00:00Z"),
		"status": store.StringAttr("uploaded"),
	}
	modern := store.Item{
		"pk":          store.StringAttr("rec-002"),
		"ts":          store.StringAttr("2025-08-01T10:00:00Z"),
		"status":      store.StringAttr("transcoded"),
		"durationSec": store.NumberAttr("187.5"),
	}
	require.NoError(t, memStore.PutItem(ctx, table, legacy))
	require.NoError(t, memStore.PutItem(ctx, table, modern))

	_, err = runner.Up(ctx, "")
	require.NoError(t, err)

	item, err := memStore.GetItem(ctx, table, store.Item{
		"pk": store.StringAttr("rec-001"),
		"ts": store.StringAttr("2025-05-01T10:00:00Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, item["durationSec"])
	assert.Equal(t, "0", *item["durationSec"].N)

	item, err = memStore.GetItem(ctx, table, store.Item{
		"pk": store.StringAttr("rec-002"),
		"ts": store.StringAttr("2025-08-01T10:00:00Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, item["durationSec"])
	assert.Equal(t, "187.5", *item["durationSec"].N)
}

func TestCatalog_DownRemovesEverything(t *testing.T) {
	runner, memStore, cfg := newCatalogRunner(t)
	ctx := context.Background()

	_, err := runner.Up(ctx, "")
	require.NoError(t, err)

	result, err := runner.Down(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Changed())

	for _, alias := range []string{"recordings", "tokens"} {
		exists, err := memStore.TableExists(ctx, cfg.TableName(alias))
		require.NoError(t, err)
		assert.False(t, exists, "table %s should be gone", alias)
	}

	applied, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
