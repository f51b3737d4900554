package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// DefaultRedisPrefix namespaces badge keys when no prefix is configured.
const DefaultRedisPrefix = "badgehouse:badge:"

// redisScanCount is the COUNT hint passed to SCAN while listing.
const redisScanCount = 256

// RedisStorage implements Storage with one Redis string per badge.
// SET replaces a value atomically and DEL is idempotent.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds configuration for creating a RedisStorage.
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string

	// Password is the Redis password (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// Prefix is prepended to every key (default: DefaultRedisPrefix)
	Prefix string
}

// NewRedisStorage connects to Redis and verifies the connection.
// The caller is responsible for calling Close() when done.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisStorage(client, cfg.Prefix), nil
}

func newRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (r *RedisStorage) key(key badge.Key) string {
	return r.prefix + key.String()
}

// Get returns the badge stored under key.
func (r *RedisStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get redis key %s: %w", r.key(key), err)
	}
	return data, nil
}

// Put stores the badge without expiry.
func (r *RedisStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set redis key %s: %w", r.key(key), err)
	}
	return nil
}

// Delete removes the badge; deleting a missing key is not an error.
func (r *RedisStorage) Delete(ctx context.Context, key badge.Key) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete redis key %s: %w", r.key(key), err)
	}
	return nil
}

// Exists reports whether a badge is stored under key.
func (r *RedisStorage) Exists(ctx context.Context, key badge.Key) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check redis key %s: %w", r.key(key), err)
	}
	return n > 0, nil
}

// List scans the prefix. Keys whose suffix is not a badge key are skipped.
func (r *RedisStorage) List(ctx context.Context) ([]badge.Key, error) {
	var keys []badge.Key

	iter := r.client.Scan(ctx, 0, r.prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		hex, ok := strings.CutPrefix(iter.Val(), r.prefix)
		if !ok {
			continue
		}
		if key, err := badge.ParseKey(hex); err == nil {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan redis keys: %w", err)
	}

	return keys, nil
}

// Close releases resources held by the RedisStorage.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
