// Package migrations is the static catalog of schema and data changes
// for the recordings platform. Each unit lives in its own file named
// after its version; the registry sorts by version, so the order of
// this list is only historical.
package migrations

import "dynamo-lifecycle/internal/migrate"

// Catalog returns every known migration unit
func Catalog() []migrate.Unit {
	return []migrate.Unit{
		m20250601120000,
		m20250614083000,
		m20250701101500,
		m20250805164500,
	}
}

// NewRegistry builds a registry over the full catalog
func NewRegistry() (*migrate.Registry, error) {
	return migrate.NewRegistry(Catalog())
}
