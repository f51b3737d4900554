package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/config"
)

// ContentType is the media type of every stored badge.
const ContentType = "image/svg+xml"

// ErrNotFound is returned by Get when no badge is stored under a key,
// or when the stored object cannot be read.
var ErrNotFound = errors.New("badge not found")

// Storage defines the interface for rendered badge persistence.
// Implementations include the local filesystem (default), GCS, MinIO and Redis.
// Every implementation owns its namespace exclusively.
type Storage interface {
	// Get returns the SVG stored under key.
	// Returns ErrNotFound if nothing is stored under key.
	Get(ctx context.Context, key badge.Key) ([]byte, error)

	// Put stores data under key, replacing any previous content.
	// Readers never observe a partially written badge.
	Put(ctx context.Context, key badge.Key, data []byte) error

	// Delete removes the badge stored under key.
	// Deleting a missing key is not an error; failing to remove an existing
	// badge is.
	Delete(ctx context.Context, key badge.Key) error

	// Exists reports whether a badge is stored under key.
	Exists(ctx context.Context, key badge.Key) (bool, error)

	// List returns the keys of all stored badges.
	// Objects that are not badges are skipped.
	List(ctx context.Context) ([]badge.Key, error)

	// Close releases any resources held by the storage client.
	Close() error
}

// ObjectPath returns the object name of a badge for the object store backends.
// Format: {prefix}{hex}.svg
func ObjectPath(prefix string, key badge.Key) string {
	return prefix + key.FileName()
}

// Options configures the decorators New wraps around the backend.
type Options struct {
	// Observer receives the outcome of every storage operation (optional)
	Observer Observer

	Logger *slog.Logger
}

// New creates the storage backend selected by cfg, wrapped with the
// decorators cfg enables (instrumentation, presence index, LRU cache).
func New(ctx context.Context, cfg config.StorageConfig, opts Options) (Storage, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var (
		backend Storage
		err     error
	)

	switch cfg.Type {
	case config.StorageTypeFilesystem, "":
		backend, err = NewFilesystemStorage(cfg.Root)
	case config.StorageTypeGCS:
		backend, err = NewGCSStorage(ctx, GCSConfig{
			Bucket: cfg.GCSBucket,
			Prefix: cfg.Prefix,
		})
	case config.StorageTypeMinio:
		backend, err = NewMinIOStorage(ctx, MinIOConfig{
			Endpoint:        cfg.MinIOEndpoint,
			AccessKeyID:     cfg.MinIOAccessKey,
			SecretAccessKey: cfg.MinIOSecretKey,
			UseSSL:          cfg.MinIOUseSSL,
			Bucket:          cfg.MinIOBucket,
			Prefix:          cfg.Prefix,
		})
	case config.StorageTypeRedis:
		backend, err = NewRedisStorage(ctx, RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	s := backend
	if opts.Observer != nil {
		s = NewInstrumented(s, opts.Observer)
	}

	if cfg.Index {
		idx, err := NewIndex(ctx, s)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to build badge index: %w", err)
		}
		opts.Logger.Info("badge index built", "badges", idx.Len())
		s = idx
	}

	if cfg.CacheSize > 0 {
		cache, err := NewCache(s, cfg.CacheSize)
		if err != nil {
			backend.Close()
			return nil, err
		}
		s = cache
	}

	opts.Logger.Info("badge storage ready",
		"type", string(cfg.Type),
		"index", cfg.Index,
		"cache_size", cfg.CacheSize,
	)

	return s, nil
}
