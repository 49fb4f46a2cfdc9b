package blob

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
	"dynamo-lifecycle/internal/logging"
)

// S3 rejects multi-object deletes with more than 1000 keys
const maxDeleteBatch = 1000

// S3Store implements Store over Amazon S3 or an S3-compatible endpoint
type S3Store struct {
	client     *s3.S3
	bucket     string
	logger     *logging.Logger
	classifier *appErrors.ErrorClassifier
}

// NewS3Store creates an S3Store for the given bucket
func NewS3Store(cfg *config.S3Config, bucket string, logger *logging.Logger) (*S3Store, error) {
	if cfg == nil {
		return nil, appErrors.NewValidationError("s3 blob configuration is required", nil)
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		// Compatible endpoints such as MinIO require path-style addressing
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // token
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create AWS session", err)
	}

	return &S3Store{
		client:     s3.New(sess),
		bucket:     bucket,
		logger:     logger,
		classifier: appErrors.NewErrorClassifier(),
	}, nil
}

// Put uploads data under key
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	s.logger.LogBlobTransfer("put", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return s.classifier.ClassifyError(err)
	}
	return nil
}

// Get downloads the object stored under key
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.LogBlobTransfer("get", key, 0, time.Since(start), err)
		return nil, s.classifier.ClassifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	s.logger.LogBlobTransfer("get", key, int64(len(data)), time.Since(start), err)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to read object body", err)
	}
	return data, nil
}

// Head returns object metadata without downloading the body
func (s *S3Store) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.classifier.ClassifyError(err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         aws.Int64Value(resp.ContentLength),
		LastModified: aws.TimeValue(resp.LastModified),
	}, nil
}

// List returns all objects under prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, s.classifier.ClassifyError(err)
	}
	return objects, nil
}

// Delete removes keys in multi-object batches of up to 1000
func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	var firstErr error
	for batchStart := 0; batchStart < len(keys); batchStart += maxDeleteBatch {
		batchEnd := batchStart + maxDeleteBatch
		if batchEnd > len(keys) {
			batchEnd = len(keys)
		}

		identifiers := make([]*s3.ObjectIdentifier, 0, batchEnd-batchStart)
		for _, key := range keys[batchStart:batchEnd] {
			identifiers = append(identifiers, &s3.ObjectIdentifier{Key: aws.String(key)})
		}

		start := time.Now()
		resp, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{
				Objects: identifiers,
				Quiet:   aws.Bool(true),
			},
		})
		s.logger.LogBlobTransfer("delete", "", int64(len(identifiers)), time.Since(start), err)
		if err != nil {
			if firstErr == nil {
				firstErr = s.classifier.ClassifyError(err)
			}
			continue
		}
		for _, failure := range resp.Errors {
			s.logger.WithFields(map[string]interface{}{
				"key":  aws.StringValue(failure.Key),
				"code": aws.StringValue(failure.Code),
			}).Warn("Failed to delete object")
			if firstErr == nil {
				firstErr = appErrors.NewStorageError(
					"failed to delete object "+aws.StringValue(failure.Key), nil)
			}
		}
	}
	return firstErr
}
