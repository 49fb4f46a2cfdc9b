// Package blob abstracts the object storage that backup artifacts live in.
// Chunk files and manifests are opaque byte objects here; layout and naming
// belong to the backup engine.
package blob

import (
	"context"
	"fmt"
	"time"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

// Supported blob storage providers
const (
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderAzure = "azure"
	ProviderLocal = "local"
)

// ObjectInfo describes one stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the narrow object storage surface the backup engine depends on.
// Get and Head report missing keys as not-found errors.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// List returns all objects under prefix, following pagination
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Delete removes keys best-effort and returns the first error after
	// attempting every key
	Delete(ctx context.Context, keys []string) error
}

// NewStore creates the blob store for the configured provider
func NewStore(ctx context.Context, cfg *config.BlobConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case ProviderLocal:
		return NewLocalStore(cfg.Local, logger)
	case ProviderS3:
		return NewS3Store(cfg.S3, cfg.Bucket, logger)
	case ProviderGCS:
		return NewGCSStore(ctx, cfg.GCS, cfg.Bucket, logger)
	case ProviderAzure:
		return NewAzureStore(cfg.Azure, cfg.Bucket, logger)
	default:
		return nil, appErrors.NewValidationError(
			fmt.Sprintf("unsupported blob provider: %s", cfg.Provider), nil)
	}
}
