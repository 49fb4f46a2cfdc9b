package migrations

import (
	"context"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

// m20250701101500: create tokens table.
// Playback tokens are looked up by their opaque id only, so the table
// keys on pk without a range attribute.
var m20250701101500 = migrate.Unit{
	Version:     "20250701101500",
	Description: "create tokens table",
	Up: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("tokens")
		exists, err := client.TableExists(ctx, table)
		if err != nil || exists {
			return err
		}
		schema := store.TableSchema{
			Name:    table,
			HashKey: store.KeyDefinition{Name: "pk", Type: "S"},
		}
		if err := client.CreateTable(ctx, schema); err != nil {
			return err
		}
		return client.WaitForTableActive(ctx, table)
	},
	Down: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("tokens")
		exists, err := client.TableExists(ctx, table)
		if err != nil || !exists {
			return err
		}
		return client.DeleteTable(ctx, table)
	},
}
