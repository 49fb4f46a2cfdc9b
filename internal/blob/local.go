package blob

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

// LocalStore implements Store on the local file system. Slash-separated
// object keys map to paths under the base directory.
type LocalStore struct {
	basePath string
	logger   *logging.Logger
}

// NewLocalStore creates a LocalStore rooted at the configured base path
func NewLocalStore(cfg *config.LocalConfig, logger *logging.Logger) (*LocalStore, error) {
	if cfg == nil || cfg.BasePath == "" {
		return nil, appErrors.NewValidationError("local blob base path is required", nil)
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, appErrors.NewStorageError("failed to create base directory", err)
	}
	return &LocalStore{
		basePath: cfg.BasePath,
		logger:   logger,
	}, nil
}

func (l *LocalStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", appErrors.NewValidationError("invalid object key: "+key, nil)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Put writes data to the file for key, creating parent directories
func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return appErrors.NewStorageError("failed to create object directory", err)
	}
	err = os.WriteFile(path, data, 0o644)
	l.logger.LogBlobTransfer("put", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return appErrors.NewStorageError("failed to write object file", err)
	}
	return nil
}

// Get reads the file for key
func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := os.ReadFile(path)
	l.logger.LogBlobTransfer("get", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.NewNotFoundError("object "+key+" does not exist", err)
		}
		return nil, appErrors.NewStorageError("failed to read object file", err)
	}
	return data, nil
}

// Head stats the file for key
func (l *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.NewNotFoundError("object "+key+" does not exist", err)
		}
		return nil, appErrors.NewStorageError("failed to stat object file", err)
	}
	if info.IsDir() {
		return nil, appErrors.NewNotFoundError("object "+key+" does not exist", nil)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// List walks the base directory and returns objects whose key starts with
// prefix
func (l *LocalStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, appErrors.NewStorageError("failed to list local objects", err)
	}
	return objects, nil
}

// Delete removes the files for keys; missing files are ignored
func (l *LocalStore) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		path, err := l.pathFor(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		start := time.Now()
		err = os.Remove(path)
		if err != nil && os.IsNotExist(err) {
			err = nil
		}
		l.logger.LogBlobTransfer("delete", key, 0, time.Since(start), err)
		if err != nil {
			l.logger.WithField("key", key).Warn("Failed to delete object file")
			if firstErr == nil {
				firstErr = appErrors.NewStorageError("failed to delete object file", err)
			}
		}
	}
	return firstErr
}
