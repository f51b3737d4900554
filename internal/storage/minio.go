package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// MinIOStorage implements the Storage interface using MinIO (S3-compatible storage).
// A PUT replaces the object atomically.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

// MinIOConfig holds the configuration for MinIO client initialization.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// NewMinIOStorage creates a new MinIO storage client and the bucket if it
// does not exist yet.
func NewMinIOStorage(ctx context.Context, config MinIOConfig) (*MinIOStorage, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if config.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", config.Bucket, err)
		}
	}

	return &MinIOStorage{
		client: client,
		bucket: config.Bucket,
		prefix: config.Prefix,
	}, nil
}

// Get retrieves the badge stored under key.
func (m *MinIOStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	objectPath := ObjectPath(m.prefix, key)

	obj, err := m.client.GetObject(ctx, m.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get MinIO object %s: %w", objectPath, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read MinIO object %s: %w", objectPath, err)
	}

	return data, nil
}

// Put uploads the badge.
func (m *MinIOStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	objectPath := ObjectPath(m.prefix, key)

	_, err := m.client.PutObject(ctx, m.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to MinIO object %s: %w", objectPath, err)
	}

	return nil
}

// Delete removes the badge object. S3 deletes are idempotent.
func (m *MinIOStorage) Delete(ctx context.Context, key badge.Key) error {
	objectPath := ObjectPath(m.prefix, key)

	if err := m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("failed to delete MinIO object %s: %w", objectPath, err)
	}

	return nil
}

// Exists reports whether the badge object exists.
func (m *MinIOStorage) Exists(ctx context.Context, key badge.Key) (bool, error) {
	objectPath := ObjectPath(m.prefix, key)

	_, err := m.client.StatObject(ctx, m.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat MinIO object %s: %w", objectPath, err)
	}

	return true, nil
}

// List lists all badge objects under the configured prefix.
func (m *MinIOStorage) List(ctx context.Context) ([]badge.Key, error) {
	var keys []badge.Key

	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    m.prefix,
		Recursive: false,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if key, ok := parseObjectName(m.prefix, object.Key); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close releases resources held by the storage client.
// MinIO client doesn't require explicit cleanup, but we implement this for interface compliance.
func (m *MinIOStorage) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
