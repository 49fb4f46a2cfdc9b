package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "dynamo-lifecycle/internal/errors"
)

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"add search index", "add_search_index"},
		{"Add Search-Index!", "add_search_index"},
		{"  drop legacy GSI  ", "drop_legacy_gsi"},
		{"???", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slug(tc.in), "slug of %q", tc.in)
	}
}

func TestWriteUnitStub_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 30, 0, 0, time.UTC)

	path, err := WriteUnitStub(dir, "add search index", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20250823143000_add_search_index.go"), path)

	source, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(source), "package migrations")
	assert.Contains(t, string(source), `var m20250823143000 = migrate.Unit{`)
	assert.Contains(t, string(source), `Version:     "20250823143000",`)
	assert.Contains(t, string(source), `Description: "add search index",`)
	assert.Contains(t, string(source), "has no up implementation yet")
}

func TestWriteUnitStub_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 8, 23, 14, 30, 0, 0, time.UTC)

	_, err := WriteUnitStub(dir, "add search index", now)
	require.NoError(t, err)

	_, err = WriteUnitStub(dir, "add search index", now)
	require.Error(t, err)
	assert.True(t, appErrors.IsConflict(err))
}

func TestWriteUnitStub_RejectsEmptyDescription(t *testing.T) {
	_, err := WriteUnitStub(t.TempDir(), "   ", time.Now())
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))

	_, err = WriteUnitStub(t.TempDir(), "!!!", time.Now())
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}
