package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

var errBackend = errors.New("backend unavailable")

// memStorage is an in-memory Storage that counts backend calls and can be
// told to fail.
type memStorage struct {
	mu     sync.Mutex
	data   map[badge.Key][]byte
	calls  map[string]int
	failOn map[string]bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		data:   make(map[badge.Key][]byte),
		calls:  make(map[string]int),
		failOn: make(map[string]bool),
	}
}

func (m *memStorage) enter(op string) error {
	m.calls[op]++
	if m.failOn[op] {
		return errBackend
	}
	return nil
}

func (m *memStorage) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *memStorage) fail(op string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = fail
}

func (m *memStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGet); err != nil {
		return nil, err
	}
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpPut); err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) Delete(ctx context.Context, key badge.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDelete); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *memStorage) Exists(ctx context.Context, key badge.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpExists); err != nil {
		return false, err
	}
	_, ok := m.data[key]
	return ok, nil
}

func (m *memStorage) List(ctx context.Context) ([]badge.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpList); err != nil {
		return nil, err
	}
	keys := make([]badge.Key, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m *memStorage) Close() error {
	return nil
}

// remove deletes a badge without going through any decorator.
func (m *memStorage) remove(key badge.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

type observation struct {
	op       string
	err      error
	duration time.Duration
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObserveStorage(op string, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{op: op, err: err, duration: d})
}

func (r *recordingObserver) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, len(r.obs))
	for i, o := range r.obs {
		ops[i] = o.op
	}
	return ops
}

func (r *recordingObserver) last() observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.obs[len(r.obs)-1]
}

// pausingStorage stops the first call of one operation right after the
// backend has served it, until release is closed.
type pausingStorage struct {
	*memStorage

	op      string
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newPausingStorage(backend *memStorage, op string) *pausingStorage {
	return &pausingStorage{
		memStorage: backend,
		op:         op,
		reached:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (p *pausingStorage) pause(op string) {
	if op != p.op {
		return
	}
	p.once.Do(func() {
		close(p.reached)
		<-p.release
	})
}

func (p *pausingStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	data, err := p.memStorage.Get(ctx, key)
	p.pause(OpGet)
	return data, err
}

func (p *pausingStorage) Delete(ctx context.Context, key badge.Key) error {
	err := p.memStorage.Delete(ctx, key)
	p.pause(OpDelete)
	return err
}
