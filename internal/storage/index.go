package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// Index decorates a Storage with an in-memory presence set of stored keys,
// built once from List when the process starts.
//
// The set is only authoritative while this process is the single writer of
// the backend: Put and Delete through the Index keep it current, but writes
// made by anyone else are not seen until restart.
//
// Each backend write and its index update run under the lock of the key's
// stripe, so the index records the outcome of the last write to finish.
type Index struct {
	Storage

	mu   sync.RWMutex
	keys map[badge.Key]struct{}

	stripes [indexStripes]sync.Mutex
}

const indexStripes = 64

// lock serializes writes to key.
func (i *Index) lock(key badge.Key) func() {
	m := &i.stripes[int(key[0])%indexStripes]
	m.Lock()
	return m.Unlock
}

// NewIndex lists s and returns an Index over it.
func NewIndex(ctx context.Context, s Storage) (*Index, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Storage: s,
		keys:    make(map[badge.Key]struct{}, len(keys)),
	}
	for _, key := range keys {
		idx.keys[key] = struct{}{}
	}

	return idx, nil
}

// Len returns the number of indexed badges.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

func (i *Index) has(key badge.Key) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[key]
	return ok
}

func (i *Index) set(key badge.Key, present bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if present {
		i.keys[key] = struct{}{}
	} else {
		delete(i.keys, key)
	}
}

// Get answers misses from the index without touching the backend.
func (i *Index) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	if !i.has(key) {
		return nil, ErrNotFound
	}

	data, err := i.Storage.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		i.forget(ctx, key)
	}
	return data, err
}

// forget drops key after it was removed behind our back, unless a write
// recreated it in the meantime.
func (i *Index) forget(ctx context.Context, key badge.Key) {
	defer i.lock(key)()

	if ok, err := i.Storage.Exists(ctx, key); err == nil && !ok {
		i.set(key, false)
	}
}

// Put stores the badge and records it in the index.
func (i *Index) Put(ctx context.Context, key badge.Key, data []byte) error {
	defer i.lock(key)()

	if err := i.Storage.Put(ctx, key, data); err != nil {
		return err
	}
	i.set(key, true)
	return nil
}

// Delete removes the badge and its index entry. The entry is kept when the
// backend fails to delete, since the badge is still there.
func (i *Index) Delete(ctx context.Context, key badge.Key) error {
	defer i.lock(key)()

	if err := i.Storage.Delete(ctx, key); err != nil {
		return err
	}
	i.set(key, false)
	return nil
}

// Exists answers from the index.
func (i *Index) Exists(ctx context.Context, key badge.Key) (bool, error) {
	return i.has(key), nil
}

// List returns the indexed keys.
func (i *Index) List(ctx context.Context) ([]badge.Key, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	keys := make([]badge.Key, 0, len(i.keys))
	for key := range i.keys {
		keys = append(keys, key)
	}
	return keys, nil
}
