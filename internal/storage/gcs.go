package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// GCSStorage implements the Storage interface using Google Cloud Storage.
// Object writes become visible atomically when the writer is closed.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

// GCSConfig holds the configuration for the GCS backend.
type GCSConfig struct {
	Bucket string

	// Prefix is prepended to every object name, e.g. "badges/"
	Prefix string
}

// NewGCSStorage creates a new GCS storage client.
// It uses Application Default Credentials (ADC) for authentication.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (g *GCSStorage) object(key badge.Key) *gcs.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(ObjectPath(g.prefix, key))
}

// Get retrieves the badge stored under key.
func (g *GCSStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	objectPath := ObjectPath(g.prefix, key)

	r, err := g.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open GCS object %s: %w", objectPath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectPath, err)
	}

	return data, nil
}

// Put uploads the badge.
func (g *GCSStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	objectPath := ObjectPath(g.prefix, key)

	w := g.object(key).NewWriter(ctx)
	w.ContentType = ContentType
	w.Size = int64(len(data))

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", objectPath, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}

	return nil
}

// Delete removes the badge object; a missing object is not an error.
func (g *GCSStorage) Delete(ctx context.Context, key badge.Key) error {
	err := g.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %s: %w", ObjectPath(g.prefix, key), err)
	}
	return nil
}

// Exists reports whether the badge object exists.
func (g *GCSStorage) Exists(ctx context.Context, key badge.Key) (bool, error) {
	_, err := g.object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat GCS object %s: %w", ObjectPath(g.prefix, key), err)
	}
	return true, nil
}

// List lists all badge objects under the configured prefix.
func (g *GCSStorage) List(ctx context.Context) ([]badge.Key, error) {
	var keys []badge.Key

	it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{
		Prefix: g.prefix,
	})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if key, ok := parseObjectName(g.prefix, attrs.Name); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close releases resources held by the storage client.
func (g *GCSStorage) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// parseObjectName is the inverse of ObjectPath. Objects in nested
// "directories" below the prefix are not badges.
func parseObjectName(prefix, name string) (badge.Key, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || strings.Contains(rest, "/") {
		return badge.Key{}, false
	}
	return badge.ParseFileName(rest)
}
