package migrations

import (
	"context"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

// m20250805164500: backfill duration default.
// Recordings ingested before durationSec existed carry no duration at
// all, which clients treat as unknown. Zero is the documented default.
var m20250805164500 = migrate.Unit{
	Version:     "20250805164500",
	Description: "backfill duration default",
	Up: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		table := cfg.TableName("recordings")
		items, err := client.ScanSegment(ctx, table, 0, 1, nil)
		if err != nil {
			return err
		}

		var patched []store.Item
		for _, item := range items {
			if _, ok := item["durationSec"]; ok {
				continue
			}
			item["durationSec"] = store.NumberAttr("0")
			patched = append(patched, item)
		}
		if len(patched) == 0 {
			return nil
		}
		return client.BatchWriteItems(ctx, table, patched)
	},
	// A default cannot be meaningfully removed again
	Down: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		return nil
	},
}
