package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
	"dynamo-lifecycle/internal/store"
)

// Migration directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Tracking record attribute names
const (
	attrVersion     = "version"
	attrDescription = "description"
	attrAppliedAt   = "appliedAt"
	attrStatus      = "status"
	attrEnvironment = "environment"
)

// UnitOutcome reports what happened to one unit during a batch
type UnitOutcome struct {
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Result reports one up or down batch
type Result struct {
	Direction string        `json:"direction"`
	Target    string        `json:"target,omitempty"`
	Outcomes  []UnitOutcome `json:"outcomes"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether any unit in the batch failed
func (r *Result) Failed() bool {
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Changed returns how many units the batch applied or rolled back
func (r *Result) Changed() int {
	changed := 0
	for _, outcome := range r.Outcomes {
		if outcome.Status != StatusFailed {
			changed++
		}
	}
	return changed
}

// UnitStatus pairs a unit with its tracking state
type UnitStatus struct {
	Version     string     `json:"version"`
	Description string     `json:"description"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"appliedAt,omitempty"`
}

// Runner applies and rolls back registered units against one environment.
// Progress lives in a per-environment tracking table keyed by version;
// the runner creates that table on first use.
type Runner struct {
	store    store.Client
	registry *Registry
	cfg      *config.Config
	logger   *logging.Logger
}

// NewRunner creates a migration runner for the configured environment
func NewRunner(storeClient store.Client, registry *Registry, cfg *config.Config, logger *logging.Logger) (*Runner, error) {
	if registry == nil {
		return nil, appErrors.NewValidationError("migration registry is required", nil)
	}
	return &Runner{
		store:    storeClient,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Registry returns the registry this runner executes
func (r *Runner) Registry() *Registry {
	return r.registry
}

// ensureTrackingTable creates the tracking table when absent. A conflict
// from a concurrent creator counts as created; either way the table must
// be active before the runner reads it.
func (r *Runner) ensureTrackingTable(ctx context.Context) error {
	table := r.cfg.TrackingTableName()
	exists, err := r.store.TableExists(ctx, table)
	if err != nil {
		return appErrors.WrapError(err, "failed to check tracking table "+table)
	}
	if !exists {
		schema := store.TableSchema{
			Name:    table,
			HashKey: store.KeyDefinition{Name: attrVersion, Type: "S"},
		}
		if err := r.store.CreateTable(ctx, schema); err != nil && !appErrors.IsConflict(err) {
			return appErrors.WrapError(err, "failed to create tracking table "+table)
		}
		r.logger.WithField("table", table).Info("Created migration tracking table")
	}
	return r.store.WaitForTableActive(ctx, table)
}

// appliedRecords reads every tracking record, keyed by version
func (r *Runner) appliedRecords(ctx context.Context) (map[string]Record, error) {
	if err := r.ensureTrackingTable(ctx); err != nil {
		return nil, err
	}
	items, err := r.store.ScanSegment(ctx, r.cfg.TrackingTableName(), 0, 1, nil)
	if err != nil {
		return nil, appErrors.WrapError(err, "failed to read migration records")
	}

	records := make(map[string]Record, len(items))
	for _, item := range items {
		record := recordFromItem(item)
		if record.Version == "" {
			continue
		}
		records[record.Version] = record
	}
	return records, nil
}

// AppliedVersions returns the recorded versions in ascending order,
// creating the tracking table first when it does not exist yet
func (r *Runner) AppliedVersions(ctx context.Context) ([]string, error) {
	records, err := r.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(records))
	for version := range records {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}

// Pending returns the registered units without a tracking record, in
// ascending version order
func (r *Runner) Pending(ctx context.Context) ([]Unit, error) {
	records, err := r.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Unit
	for _, unit := range r.registry.Units() {
		if _, applied := records[unit.Version]; !applied {
			pending = append(pending, unit)
		}
	}
	return pending, nil
}

// Up applies every pending unit up to and including target, ascending.
// An empty target applies everything. Each success is recorded before
// the next unit starts; the first failure halts the batch and keeps the
// progress made so far.
func (r *Runner) Up(ctx context.Context, target string) (*Result, error) {
	if err := r.checkTarget(target); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Direction: DirectionUp, Target: target}

	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var batchErr error
	for _, unit := range pending {
		if target != "" && unit.Version > target {
			break
		}
		outcome, err := r.applyUnit(ctx, unit)
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			batchErr = err
			break
		}
	}

	result.Duration = time.Since(start)
	r.logBatch(result)
	return result, batchErr
}

// Down rolls back every applied unit with a version greater than target,
// newest first. An empty target rolls everything back. A record is only
// deleted after its down succeeds, so a failed rollback stays visible as
// applied.
func (r *Runner) Down(ctx context.Context, target string) (*Result, error) {
	if err := r.checkTarget(target); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{Direction: DirectionDown, Target: target}

	records, err := r.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(records))
	for version := range records {
		if version > target {
			versions = append(versions, version)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	var batchErr error
	for _, version := range versions {
		unit, ok := r.registry.Find(version)
		if !ok {
			batchErr = appErrors.NewNotFoundError(
				fmt.Sprintf("applied migration %s is not in the registry", version), nil)
			break
		}
		outcome, err := r.rollbackUnit(ctx, unit)
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			batchErr = err
			break
		}
	}

	result.Duration = time.Since(start)
	r.logBatch(result)
	return result, batchErr
}

// Status reports every registered unit with its applied state. Tracking
// records whose unit is no longer registered are included too, so drift
// between the catalog and the tracking table stays visible.
func (r *Runner) Status(ctx context.Context) ([]UnitStatus, error) {
	records, err := r.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]UnitStatus, 0, r.registry.Len())
	for _, unit := range r.registry.Units() {
		status := UnitStatus{Version: unit.Version, Description: unit.Description}
		if record, ok := records[unit.Version]; ok {
			status.Applied = true
			status.AppliedAt = appliedAtOf(record)
			delete(records, unit.Version)
		}
		statuses = append(statuses, status)
	}
	for version, record := range records {
		statuses = append(statuses, UnitStatus{
			Version:     version,
			Description: record.Description,
			Applied:     true,
			AppliedAt:   appliedAtOf(record),
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Version < statuses[j].Version
	})
	return statuses, nil
}

func appliedAtOf(record Record) *time.Time {
	if record.AppliedAt.IsZero() {
		return nil
	}
	appliedAt := record.AppliedAt
	return &appliedAt
}

// checkTarget rejects target versions the registry does not know. The
// empty target is valid in both directions and means all units.
func (r *Runner) checkTarget(target string) error {
	if target == "" {
		return nil
	}
	if _, ok := r.registry.Find(target); !ok {
		return appErrors.NewValidationError("unknown target version "+target, nil)
	}
	return nil
}

func (r *Runner) applyUnit(ctx context.Context, unit Unit) (UnitOutcome, error) {
	start := time.Now()
	outcome := UnitOutcome{Version: unit.Version, Description: unit.Description}

	err := unit.Up(ctx, r.store, r.cfg)
	if err == nil {
		record := Record{
			Version:     unit.Version,
			Description: unit.Description,
			AppliedAt:   time.Now().UTC(),
			Status:      StatusApplied,
			Environment: r.cfg.Environment,
		}
		if putErr := r.store.PutItem(ctx, r.cfg.TrackingTableName(), recordItem(record)); putErr != nil {
			err = appErrors.WrapError(putErr, "migration applied but its record could not be written")
		}
	}

	outcome.Duration = time.Since(start)
	r.logger.LogMigration(unit.Version, unit.Description, DirectionUp, outcome.Duration, err)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		return outcome, appErrors.NewMigrationFailure(unit.Version, err)
	}
	outcome.Status = StatusApplied
	return outcome, nil
}

func (r *Runner) rollbackUnit(ctx context.Context, unit Unit) (UnitOutcome, error) {
	start := time.Now()
	outcome := UnitOutcome{Version: unit.Version, Description: unit.Description}

	err := unit.Down(ctx, r.store, r.cfg)
	if err == nil {
		key := store.Item{attrVersion: store.StringAttr(unit.Version)}
		if delErr := r.store.DeleteItem(ctx, r.cfg.TrackingTableName(), key); delErr != nil {
			err = appErrors.WrapError(delErr, "migration rolled back but its record could not be removed")
		}
	}

	outcome.Duration = time.Since(start)
	r.logger.LogMigration(unit.Version, unit.Description, DirectionDown, outcome.Duration, err)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		return outcome, appErrors.NewMigrationFailure(unit.Version, err)
	}
	outcome.Status = StatusRolledBack
	return outcome, nil
}

func (r *Runner) logBatch(result *Result) {
	r.logger.WithFields(map[string]interface{}{
		"direction": result.Direction,
		"changed":   result.Changed(),
		"failed":    result.Failed(),
		"duration":  result.Duration.String(),
	}).Info("Migration batch finished")
}

func recordItem(record Record) store.Item {
	return store.Item{
		attrVersion:     store.StringAttr(record.Version),
		attrDescription: store.StringAttr(record.Description),
		attrAppliedAt:   store.StringAttr(record.AppliedAt.UTC().Format(time.RFC3339)),
		attrStatus:      store.StringAttr(record.Status),
		attrEnvironment: store.StringAttr(record.Environment),
	}
}

func recordFromItem(item store.Item) Record {
	record := Record{
		Version:     stringAttr(item, attrVersion),
		Description: stringAttr(item, attrDescription),
		Status:      stringAttr(item, attrStatus),
		Environment: stringAttr(item, attrEnvironment),
	}
	if raw := stringAttr(item, attrAppliedAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			record.AppliedAt = parsed
		}
	}
	return record
}

func stringAttr(item store.Item, name string) string {
	if av, ok := item[name]; ok && av != nil && av.S != nil {
		return *av.S
	}
	return ""
}
