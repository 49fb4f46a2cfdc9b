// Package migrate applies versioned schema and data changes to the
// partitioned store and tracks what has been applied per environment.
package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/store"
)

// Func is one direction of a migration unit. Implementations must be
// idempotent so a partially applied batch can be re-run safely.
type Func func(ctx context.Context, client store.Client, cfg *config.Config) error

// Unit is one versioned, reversible schema or data change. Versions are
// sortable strings, by convention a UTC timestamp like 20250601120000,
// and must be unique across the registry.
type Unit struct {
	Version     string
	Description string
	Up          Func
	Down        Func
}

// Migration record status values
const (
	StatusApplied    = "applied"
	StatusRolledBack = "rolledBack"
	StatusFailed     = "failed"
)

// Record is the persisted proof that a unit was applied in an
// environment. Absence of a record means the unit is pending.
type Record struct {
	Version     string    `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"appliedAt"`
	Status      string    `json:"status"`
	Environment string    `json:"environment"`
}

// Registry holds the full ordered set of migration units
type Registry struct {
	units []Unit
}

// NewRegistry validates and sorts the given units into a registry.
// Duplicate versions are rejected so two units can never race for the
// same tracking record.
func NewRegistry(units []Unit) (*Registry, error) {
	seen := make(map[string]bool, len(units))
	sorted := make([]Unit, 0, len(units))
	for _, unit := range units {
		if unit.Version == "" {
			return nil, appErrors.NewValidationError(
				fmt.Sprintf("migration %q has no version", unit.Description), nil)
		}
		if unit.Up == nil || unit.Down == nil {
			return nil, appErrors.NewValidationError(
				fmt.Sprintf("migration %s must define both up and down", unit.Version), nil)
		}
		if seen[unit.Version] {
			return nil, appErrors.NewConflictError(
				fmt.Sprintf("duplicate migration version %s", unit.Version), nil)
		}
		seen[unit.Version] = true
		sorted = append(sorted, unit)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return &Registry{units: sorted}, nil
}

// Units returns the registered units in ascending version order
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Find returns the unit with the given version
func (r *Registry) Find(version string) (Unit, bool) {
	for _, unit := range r.units {
		if unit.Version == version {
			return unit, true
		}
	}
	return Unit{}, false
}

// Len returns the number of registered units
func (r *Registry) Len() int {
	return len(r.units)
}
