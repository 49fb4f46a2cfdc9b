// Package lifecycle sequences migrations, seeding, and schema validation
// into the environment-level workflows, and fronts the backup engine for
// the top level commands.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"

	"dynamo-lifecycle/internal/backup"
	"dynamo-lifecycle/internal/blob"
	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
	"dynamo-lifecycle/internal/worker"
)

// SetupOptions selects the optional data population steps
type SetupOptions struct {
	SeedDemo bool
	SeedTest bool
}

// Check is one validation probe of the running schema
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// SetupResult reports one environment setup run
type SetupResult struct {
	Migrations *migrate.Result `json:"migrations"`
	Seeded     *SeedSummary    `json:"seeded,omitempty"`
	Validation []Check         `json:"validation"`
	Duration   time.Duration   `json:"duration"`
}

// Failed reports whether setup left the environment unhealthy
func (r *SetupResult) Failed() bool {
	if r.Migrations != nil && r.Migrations.Failed() {
		return true
	}
	for _, check := range r.Validation {
		if !check.Passed {
			return true
		}
	}
	return false
}

// ResetResult reports one environment teardown run
type ResetResult struct {
	Cleared    map[string]int64 `json:"cleared"`
	Migrations *migrate.Result  `json:"migrations,omitempty"`
	Duration   time.Duration    `json:"duration"`
}

// Orchestrator drives the environment lifecycle end to end: schema
// migrations first, then optional seeding, then validation, with backup
// and restore delegated to the backup engine
type Orchestrator struct {
	store    store.Client
	runner   *migrate.Runner
	backups  *backup.Manager
	restorer *backup.Restorer
	pool     *worker.Pool
	cfg      *config.Config
	logger   *logging.Logger
}

// NewOrchestrator wires the lifecycle workflows over one store client,
// one blob store, and the migration registry
func NewOrchestrator(storeClient store.Client, blobStore blob.Store, registry *migrate.Registry, cfg *config.Config, logger *logging.Logger) (*Orchestrator, error) {
	runner, err := migrate.NewRunner(storeClient, registry, cfg, logger)
	if err != nil {
		return nil, err
	}
	backups, err := backup.NewManager(storeClient, blobStore, cfg, logger)
	if err != nil {
		return nil, err
	}
	restorer, err := backup.NewRestorer(storeClient, blobStore, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:    storeClient,
		runner:   runner,
		backups:  backups,
		restorer: restorer,
		pool:     worker.NewPool(cfg.Backup.Workers),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Setup brings the environment to the current schema version, optionally
// seeds it, and validates that the tables and indexes answer queries.
// A migration failure aborts before any seeding runs.
func (o *Orchestrator) Setup(ctx context.Context, opts SetupOptions) (*SetupResult, error) {
	start := time.Now()
	o.logger.WithFields(map[string]interface{}{
		"environment": o.cfg.Environment,
		"seedDemo":    opts.SeedDemo,
		"seedTest":    opts.SeedTest,
	}).Info("Starting environment setup")

	result := &SetupResult{}
	migrations, err := o.runner.Up(ctx, "")
	result.Migrations = migrations
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	if opts.SeedDemo || opts.SeedTest {
		seeded := newSeedSummary()
		if opts.SeedDemo {
			demo, err := SeedDemo(ctx, o.store, o.cfg)
			if err != nil {
				result.Duration = time.Since(start)
				return result, appErrors.WrapError(err, "demo seeding failed")
			}
			seeded.Merge(demo)
		}
		if opts.SeedTest {
			test, err := SeedTest(ctx, o.store, o.cfg)
			if err != nil {
				result.Duration = time.Since(start)
				return result, appErrors.WrapError(err, "test seeding failed")
			}
			seeded.Merge(test)
		}
		result.Seeded = seeded
	}

	result.Validation = o.validateSchema(ctx)
	result.Duration = time.Since(start)

	o.logger.WithFields(map[string]interface{}{
		"applied":  migrations.Changed(),
		"failed":   result.Failed(),
		"duration": result.Duration.String(),
	}).Info("Environment setup finished")
	return result, nil
}

// Reset clears every application table and rolls all migrations back.
// It refuses to run unless confirm is set.
func (o *Orchestrator) Reset(ctx context.Context, confirm bool) (*ResetResult, error) {
	if !confirm {
		return nil, appErrors.NewValidationError("reset is destructive and requires confirmation", nil)
	}

	start := time.Now()
	o.logger.WithField("environment", o.cfg.Environment).Warn("Resetting environment")

	result := &ResetResult{Cleared: make(map[string]int64)}
	for _, table := range o.cfg.AppTableNames() {
		deleted, err := o.clearTable(ctx, table)
		if err != nil {
			result.Duration = time.Since(start)
			return result, appErrors.WrapError(err, "failed to clear table "+table)
		}
		result.Cleared[table] = deleted
	}

	migrations, err := o.runner.Down(ctx, "")
	result.Migrations = migrations
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	o.logger.WithFields(map[string]interface{}{
		"rolledBack": migrations.Changed(),
		"duration":   result.Duration.String(),
	}).Info("Environment reset finished")
	return result, nil
}

// Backup creates a full backup through the backup manager. An empty name
// lets the manager generate one.
func (o *Orchestrator) Backup(ctx context.Context, name string) (*backup.Result, error) {
	return o.backups.CreateFullBackup(ctx, name)
}

// RestoreFrom resolves nameOrPath and restores it with the given options
func (o *Orchestrator) RestoreFrom(ctx context.Context, nameOrPath string, opts backup.RestoreOptions) (*backup.RestoreResult, error) {
	resolved, err := o.backups.ResolveBackup(ctx, nameOrPath)
	if err != nil {
		return nil, err
	}
	return o.restorer.Restore(ctx, resolved, opts)
}

// validateSchema verifies every application table is active and every
// configured index answers a query for a value sampled from live data.
// Problems land in the returned checks, never in an error, so setup can
// report all of them at once.
func (o *Orchestrator) validateSchema(ctx context.Context) []Check {
	var checks []Check
	for _, table := range o.cfg.AppTableNames() {
		checks = append(checks, o.checkTableActive(ctx, table))
	}

	primary := o.cfg.TableName(o.cfg.Store.Tables.Primary)
	for _, probe := range o.cfg.Store.Tables.Indexes {
		checks = append(checks, o.checkIndexAnswers(ctx, primary, probe))
	}
	return checks
}

func (o *Orchestrator) checkTableActive(ctx context.Context, table string) Check {
	check := Check{Name: "table " + table}

	desc, err := o.store.DescribeTable(ctx, table)
	if err != nil {
		check.Details = err.Error()
		return check
	}
	if desc.Status != store.StatusActive {
		check.Details = "status " + desc.Status
		return check
	}
	check.Passed = true
	check.Details = fmt.Sprintf("active with %d items", desc.ItemCount)
	return check
}

func (o *Orchestrator) checkIndexAnswers(ctx context.Context, table string, probe config.IndexProbe) Check {
	check := Check{Name: "index " + probe.Name}

	sample, err := o.sampleAttribute(ctx, table, probe.HashAttribute)
	if err != nil {
		check.Details = err.Error()
		return check
	}
	if sample == nil {
		// Nothing carries the attribute yet, so there is no key to probe with
		check.Passed = true
		check.Details = "no data to probe " + probe.HashAttribute + " with"
		return check
	}

	items, err := o.store.Query(ctx, table, probe.Name, probe.HashAttribute, sample, 1)
	if err != nil {
		check.Details = err.Error()
		return check
	}
	if len(items) == 0 {
		check.Details = fmt.Sprintf("no items for sampled %s value", probe.HashAttribute)
		return check
	}
	check.Passed = true
	check.Details = "answered a query for a sampled key"
	return check
}

// sampleAttribute returns the attribute value of any item that carries
// it, or nil when no item does
func (o *Orchestrator) sampleAttribute(ctx context.Context, table, attribute string) (*dynamodb.AttributeValue, error) {
	items, err := o.store.ScanSegment(ctx, table, 0, 1, nil)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if value, ok := item[attribute]; ok {
			return value, nil
		}
	}
	return nil, nil
}

// clearTable deletes every item through a parallel segment scan feeding
// one key collector. A table that does not exist counts as already
// clear, so reset also works on half-built environments.
func (o *Orchestrator) clearTable(ctx context.Context, table string) (int64, error) {
	exists, err := o.store.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	desc, err := o.store.DescribeTable(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(desc.KeyAttributes) == 0 {
		return 0, appErrors.NewStorageError("table "+table+" reports no key attributes", nil)
	}

	var mu sync.Mutex
	var keys []store.Item

	segments := o.pool.Workers()
	err = o.pool.Run(ctx, func(workCtx context.Context, segment int) error {
		items, err := o.store.ScanSegment(workCtx, table, segment, segments, nil)
		if err != nil {
			return err
		}
		batch := make([]store.Item, 0, len(items))
		for _, item := range items {
			batch = append(batch, store.KeyOf(item, desc.KeyAttributes))
		}
		mu.Lock()
		keys = append(keys, batch...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := o.store.BatchDeleteItems(ctx, table, keys); err != nil {
		return 0, err
	}
	o.logger.WithFields(map[string]interface{}{
		"table":   table,
		"deleted": len(keys),
	}).Debug("Cleared table")
	return int64(len(keys)), nil
}
