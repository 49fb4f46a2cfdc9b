package migrations

import (
	"context"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

const statusIndexName = "status-index"

// m20250614083000: add status index.
// The transcoding pipeline asks for every recording in a given status,
// newest first, which the table keys cannot answer.
var m20250614083000 = migrate.Unit{
	Version:     "20250614083000",
	Description: "add status index",
	Up: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("recordings")
		desc, err := client.DescribeTable(ctx, table)
		if err != nil {
			return err
		}
		for _, idx := range desc.Indexes {
			if idx.Name == statusIndexName {
				return nil
			}
		}
		index := store.IndexSchema{
			Name:     statusIndexName,
			HashKey:  store.KeyDefinition{Name: "status", Type: "S"},
			RangeKey: &store.KeyDefinition{Name: "ts", Type: "S"},
		}
		if err := client.CreateIndex(ctx, table, index); err != nil {
			return err
		}
		return client.WaitForIndexActive(ctx, table, statusIndexName)
	},
	Down: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("recordings")
		desc, err := client.DescribeTable(ctx, table)
		if err != nil {
			return err
		}
		for _, idx := range desc.Indexes {
			if idx.Name == statusIndexName {
				return client.DeleteIndex(ctx, table, statusIndexName)
			}
		}
		return nil
	},
}
