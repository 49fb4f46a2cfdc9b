package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	appErrors "dynamo-lifecycle/internal/errors"
)

// VersionTimeFormat renders a UTC time as a migration version
const VersionTimeFormat = "20060102150405"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a free-form description into a file name fragment
func Slug(description string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(description), "_")
	return strings.Trim(slug, "_")
}

const stubTemplate = `package migrations

import (
	"context"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/migrate"
	"dynamo-lifecycle/internal/store"
)

// m%[1]s: %[2]s.
// Implement both directions, then add this unit to Catalog().
var m%[1]s = migrate.Unit{
	Version:     %[3]q,
	Description: %[4]q,
	Up: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		return appErrors.NewValidationError("migration %[1]s has no up implementation yet", nil)
	},
	Down: func(ctx context.Context, client store.Client, cfg *config.Config) error {
		return appErrors.NewValidationError("migration %[1]s has no down implementation yet", nil)
	},
}
`

// WriteUnitStub writes a skeleton migration unit into dir and returns the
// created path. The stub errors in both directions until the developer
// fills it in, so an empty unit can never be recorded as applied.
func WriteUnitStub(dir, description string, now time.Time) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", appErrors.NewValidationError("migration description is required", nil)
	}
	slug := Slug(description)
	if slug == "" {
		return "", appErrors.NewValidationError(
			"migration description needs at least one letter or digit: "+description, nil)
	}

	version := now.UTC().Format(VersionTimeFormat)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.go", version, slug))
	source := fmt.Sprintf(stubTemplate, version, description, version, description)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", appErrors.NewConflictError("migration file already exists: "+path, nil)
		}
		return "", appErrors.NewStorageError("failed to create migration file "+path, err)
	}
	defer file.Close()

	if _, err := file.WriteString(source); err != nil {
		return "", appErrors.NewStorageError("failed to write migration file "+path, err)
	}
	return path, nil
}
