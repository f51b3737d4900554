package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// Cache decorates a Storage with a read-through LRU cache of badge content.
// Writes and deletes evict the entry instead of populating it, so the next
// read always reloads what the backend kept.
//
// A load is only cached when no write or delete started or finished while it
// read the backend, so a slow read never caches bytes a writer replaced.
type Cache struct {
	Storage

	lru *lru.Cache[badge.Key, []byte]

	mu         sync.Mutex
	generation uint64
}

// NewCache wraps s with an LRU cache holding up to size badges.
func NewCache(s Storage, size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid cache size: %d (must be positive)", size)
	}

	c, err := lru.New[badge.Key, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create badge cache: %w", err)
	}

	return &Cache{Storage: s, lru: c}, nil
}

// Get serves the badge from the cache, loading it from the backend on a miss.
func (c *Cache) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	if data, ok := c.lru.Get(key); ok {
		return bytes.Clone(data), nil
	}

	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	data, err := c.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generation == generation {
		c.lru.Add(key, bytes.Clone(data))
	}
	c.mu.Unlock()

	return data, nil
}

// invalidate evicts key and marks every load in flight as stale.
func (c *Cache) invalidate(key badge.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Remove(key)
}

// Put stores the badge and evicts any cached copy.
func (c *Cache) Put(ctx context.Context, key badge.Key, data []byte) error {
	c.invalidate(key)
	defer c.invalidate(key)
	return c.Storage.Put(ctx, key, data)
}

// Delete removes the badge and evicts any cached copy.
func (c *Cache) Delete(ctx context.Context, key badge.Key) error {
	c.invalidate(key)
	defer c.invalidate(key)
	return c.Storage.Delete(ctx, key)
}

// Exists answers from the cache when possible.
func (c *Cache) Exists(ctx context.Context, key badge.Key) (bool, error) {
	if c.lru.Contains(key) {
		return true, nil
	}
	return c.Storage.Exists(ctx, key)
}

// Len returns the number of cached badges.
func (c *Cache) Len() int {
	return c.lru.Len()
}
