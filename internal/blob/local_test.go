package blob

import (
	"bytes"
	"context"
	"testing"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

func newLocalTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(&config.LocalConfig{BasePath: t.TempDir()}, logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return store
}

func TestNewLocalStoreValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.LocalConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  &config.LocalConfig{BasePath: t.TempDir()},
			wantErr: false,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "empty base path",
			config:  &config.LocalConfig{BasePath: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocalStore(tt.config, logging.NewDefaultLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLocalStore() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocalPutGetHead(t *testing.T) {
	store := newLocalTestStore(t)
	ctx := context.Background()
	data := []byte(`{"pk":"rec-001"}`)
	key := "backups/dev/backup-x/recordings/chunk-00000.json"

	if err := store.Put(ctx, key, data, "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %s, want %s", got, data)
	}

	info, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if info.Key != key || info.Size != int64(len(data)) {
		t.Errorf("Head() = %+v, want key %s size %d", info, key, len(data))
	}
}

func TestLocalGetMissingIsNotFound(t *testing.T) {
	store := newLocalTestStore(t)

	_, err := store.Get(context.Background(), "backups/dev/missing.json")
	if !appErrors.IsNotFound(err) {
		t.Errorf("Get() error = %v, want not-found", err)
	}
	_, err = store.Head(context.Background(), "backups/dev/missing.json")
	if !appErrors.IsNotFound(err) {
		t.Errorf("Head() error = %v, want not-found", err)
	}
}

func TestLocalListByPrefix(t *testing.T) {
	store := newLocalTestStore(t)
	ctx := context.Background()

	keys := []string{
		"backups/dev/backup-a/manifest.json",
		"backups/dev/backup-a/recordings/chunk-00000.json",
		"backups/dev/backup-b/manifest.json",
		"backups/staging/backup-c/manifest.json",
	}
	for _, key := range keys {
		if err := store.Put(ctx, key, []byte("{}"), "application/json"); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "backups/dev/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 3 {
		t.Errorf("List() returned %d objects, want 3", len(objects))
	}

	objects, err = store.List(ctx, "backups/dev/backup-a/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 {
		t.Errorf("List() returned %d objects, want 2", len(objects))
	}
}

func TestLocalDelete(t *testing.T) {
	store := newLocalTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "backups/dev/backup-a/manifest.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Missing keys are tolerated alongside real ones
	err := store.Delete(ctx, []string{
		"backups/dev/backup-a/manifest.json",
		"backups/dev/backup-a/gone.json",
	})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, "backups/dev/backup-a/manifest.json"); !appErrors.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not-found", err)
	}
}

func TestLocalRejectsTraversalKeys(t *testing.T) {
	store := newLocalTestStore(t)

	err := store.Put(context.Background(), "../outside.json", []byte("{}"), "application/json")
	if !appErrors.IsValidation(err) {
		t.Errorf("Put() error = %v, want validation", err)
	}
}
