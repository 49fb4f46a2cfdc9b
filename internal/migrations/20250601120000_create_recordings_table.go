package migrations

import (
	"context"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

// m20250601120000: create recordings table.
// Recordings of one account share a partition key and sort by capture
// timestamp, so pk is the hash key and ts the range key.
var m20250601120000 = migrate.Unit{
	Version:     "20250601120000",
	Description: "create recordings table",
	Up: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("recordings")
		exists, err := client.TableExists(ctx, table)
		if err != nil || exists {
			return err
		}
		schema := store.TableSchema{
			Name:     table,
			HashKey:  store.KeyDefinition{Name: "pk", Type: "S"},
			RangeKey: &store.KeyDefinition{Name: "ts", Type: "S"},
		}
		if err := client.CreateTable(ctx, schema); err != nil {
			return err
		}
		return client.WaitForTableActive(ctx, table)
	},
	Down: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("recordings")
		exists, err := client.TableExists(ctx, table)
		if err != nil || !exists {
			return err
		}
		return client.DeleteTable(ctx, table)
	},
}
