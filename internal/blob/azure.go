package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

// AzureStore implements Store over Azure Blob Storage. The configured
// bucket name maps to an Azure container.
type AzureStore struct {
	containerURL azblob.ContainerURL
	logger       *logging.Logger
}

// NewAzureStore creates an AzureStore for the given container
func NewAzureStore(cfg *config.AzureConfig, container string, logger *logging.Logger) (*AzureStore, error) {
	if cfg == nil {
		return nil, appErrors.NewValidationError("azure blob configuration is required", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, appErrors.NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStore{
		containerURL: azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(container),
		logger:       logger,
	}, nil
}

// Put uploads data under key
func (a *AzureStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	blobURL := a.containerURL.NewBlockBlobURL(key)
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentType,
		},
	})
	a.logger.LogBlobTransfer("put", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return a.classify(key, err)
	}
	return nil
}

// Get downloads the object stored under key
func (a *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	blobURL := a.containerURL.NewBlockBlobURL(key)
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		a.logger.LogBlobTransfer("get", key, 0, time.Since(start), err)
		return nil, a.classify(key, err)
	}

	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()

	data, err := io.ReadAll(body)
	a.logger.LogBlobTransfer("get", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to read blob body", err)
	}
	return data, nil
}

// Head returns object metadata without downloading the body
func (a *AzureStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	blobURL := a.containerURL.NewBlockBlobURL(key)
	props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, a.classify(key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         props.ContentLength(),
		LastModified: props.LastModified(),
	}, nil
}

// List returns all objects under prefix, following the continuation marker
func (a *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: prefix,
		})
		if err != nil {
			return nil, appErrors.NewStorageError("failed to list Azure blobs", err)
		}
		for _, item := range resp.Segment.BlobItems {
			info := ObjectInfo{Key: item.Name}
			if item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			info.LastModified = item.Properties.LastModified
			objects = append(objects, info)
		}
		marker = resp.NextMarker
	}
	return objects, nil
}

// Delete removes keys one by one
func (a *AzureStore) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for _, key := range keys {
		start := time.Now()
		blobURL := a.containerURL.NewBlockBlobURL(key)
		_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
		a.logger.LogBlobTransfer("delete", key, 0, time.Since(start), err)
		if err != nil && !isAzureNotFound(err) {
			a.logger.WithField("key", key).Warn("Failed to delete blob")
			if firstErr == nil {
				firstErr = a.classify(key, err)
			}
		}
	}
	return firstErr
}

func (a *AzureStore) classify(key string, err error) error {
	if isAzureNotFound(err) {
		return appErrors.NewNotFoundError("blob "+key+" does not exist", err)
	}
	return appErrors.NewStorageError("Azure request failed", err)
}

func isAzureNotFound(err error) bool {
	if stgErr, ok := err.(azblob.StorageError); ok {
		return stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
