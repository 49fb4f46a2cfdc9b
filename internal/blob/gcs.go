package blob

import (
	"context"
	"errors"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

// GCSStore implements Store over Google Cloud Storage
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *logging.Logger
}

// NewGCSStore creates a GCSStore for the given bucket. Without an explicit
// credentials file the client falls back to application default credentials.
func NewGCSStore(ctx context.Context, cfg *config.GCSConfig, bucket string, logger *logging.Logger) (*GCSStore, error) {
	if cfg == nil {
		return nil, appErrors.NewValidationError("gcs blob configuration is required", nil)
	}

	var client *storage.Client
	var err error
	if cfg.CredentialsPath != "" {
		client, err = storage.NewClient(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
	} else {
		client, err = storage.NewClient(ctx)
	}
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create GCS client", err)
	}

	return &GCSStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Put uploads data under key
func (g *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		g.logger.LogBlobTransfer("put", key, int64(len(data)), time.Since(start), err)
		return appErrors.NewStorageError("failed to write object to GCS", err)
	}
	err := writer.Close()
	g.logger.LogBlobTransfer("put", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return appErrors.NewStorageError("failed to finalize GCS object", err)
	}
	return nil
}

// Get downloads the object stored under key
func (g *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		g.logger.LogBlobTransfer("get", key, 0, time.Since(start), err)
		return nil, g.classify(key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	g.logger.LogBlobTransfer("get", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to read object body", err)
	}
	return data, nil
}

// Head returns object metadata without downloading the body
func (g *GCSStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
	if err != nil {
		return nil, g.classify(key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
	}, nil
}

// List returns all objects under prefix
func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, appErrors.NewStorageError("failed to list GCS objects", err)
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

// Delete removes keys one by one; GCS has no multi-object delete
func (g *GCSStore) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		start := time.Now()
		err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
		g.logger.LogBlobTransfer("delete", key, 0, time.Since(start), err)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			g.logger.WithField("key", key).Warn("Failed to delete object")
			if firstErr == nil {
				firstErr = g.classify(key, err)
			}
		}
	}
	return firstErr
}

func (g *GCSStore) classify(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return appErrors.NewNotFoundError("object "+key+" does not exist", err)
	}
	return appErrors.NewStorageError("GCS request failed", err)
}
