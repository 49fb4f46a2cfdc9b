package lifecycle

import (
	"context"
	"fmt"
	"time"

	"dynamo-lifecycle/internal/config"
	"dynamo-lifecycle/internal/store"
)

// SeedSummary counts what seeding wrote per physical table
type SeedSummary struct {
	Tables map[string]int `json:"tables"`
	Total  int            `json:"total"`
}

func newSeedSummary() *SeedSummary {
	return &SeedSummary{Tables: make(map[string]int)}
}

func (s *SeedSummary) add(table string, count int) {
	s.Tables[table] += count
	s.Total += count
}

// Merge folds another summary into this one
func (s *SeedSummary) Merge(other *SeedSummary) {
	for table, count := range other.Tables {
		s.add(table, count)
	}
}

var demoStatuses = []string{"uploaded", "transcoding", "transcoded"}

// SeedDemo writes a small set of plausible recordings and playback
// tokens so a freshly set up environment has data to look at. Timestamps
// trail the current time, which keeps incremental backups meaningful.
func SeedDemo(ctx context.Context, client store.Client, cfg *config.Config) (*SeedSummary, error) {
	now := time.Now().UTC()
	updatedAt := now.Format(time.RFC3339)

	recordings := make([]store.Item, 0, 12)
	for i := 0; i < 12; i++ {
		capturedAt := now.Add(-time.Duration(i*7) * time.Hour)
		recordings = append(recordings, store.Item{
			"pk":          store.StringAttr(fmt.Sprintf("acct-%04d", i%3+1)),
			"ts":          store.StringAttr(capturedAt.Format(time.RFC3339)),
			"status":      store.StringAttr(demoStatuses[i%len(demoStatuses)]),
			"durationSec": store.NumberAttr(fmt.Sprintf("%d.%d", 45+i*13, i%10)),
			"codec":       store.StringAttr("opus"),
			"updatedAt":   store.StringAttr(updatedAt),
		})
	}

	tokens := make([]store.Item, 0, 3)
	for i := 0; i < 3; i++ {
		tokens = append(tokens, store.Item{
			"pk":        store.StringAttr(fmt.Sprintf("tok-demo-%02d", i+1)),
			"account":   store.StringAttr(fmt.Sprintf("acct-%04d", i+1)),
			"expiresAt": store.StringAttr(now.Add(24 * time.Hour).Format(time.RFC3339)),
			"updatedAt": store.StringAttr(updatedAt),
		})
	}

	return writeSeed(ctx, client, cfg, recordings, tokens)
}

// SeedTest writes a deterministic fixture set with fixed keys and
// timestamps and every pipeline status represented once
func SeedTest(ctx context.Context, client store.Client, cfg *config.Config) (*SeedSummary, error) {
	const updatedAt = "2025-01-01T12:00:00Z"

	statuses := []string{"uploaded", "transcoding", "transcoded", "failed"}
	recordings := make([]store.Item, 0, len(statuses))
	for i, status := range statuses {
		recordings = append(recordings, store.Item{
			"pk":          store.StringAttr("acct-test"),
			"ts":          store.StringAttr(fmt.Sprintf("2025-01-01T0%d:00:00Z", i)),
			"status":      store.StringAttr(status),
			"durationSec": store.NumberAttr("187.5"),
			"codec":       store.StringAttr("opus"),
			"updatedAt":   store.StringAttr(updatedAt),
		})
	}

	tokens := []store.Item{{
		"pk":        store.StringAttr("tok-test-01"),
		"account":   store.StringAttr("acct-test"),
		"expiresAt": store.StringAttr("2026-01-01T00:00:00Z"),
		"updatedAt": store.StringAttr(updatedAt),
	}}

	return writeSeed(ctx, client, cfg, recordings, tokens)
}

// writeSeed lands recordings in the primary table and tokens in the
// first auxiliary table, when one is configured
func writeSeed(ctx context.Context, client store.Client, cfg *config.Config, recordings, tokens []store.Item) (*SeedSummary, error) {
	summary := newSeedSummary()

	primary := cfg.TableName(cfg.Store.Tables.Primary)
	if err := client.BatchWriteItems(ctx, primary, recordings); err != nil {
		return nil, err
	}
	summary.add(primary, len(recordings))

	if len(cfg.Store.Tables.Aux) > 0 {
		aux := cfg.TableName(cfg.Store.Tables.Aux[0])
		if err := client.BatchWriteItems(ctx, aux, tokens); err != nil {
			return nil, err
		}
		summary.add(aux, len(tokens))
	}
	return summary, nil
}
