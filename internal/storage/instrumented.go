package storage

import (
	"context"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

// Storage operation names reported to an Observer.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpExists = "exists"
	OpList   = "list"
)

// Observer receives the outcome of storage operations.
type Observer interface {
	ObserveStorage(op string, err error, duration time.Duration)
}

// Instrumented reports every operation of the wrapped Storage to an Observer.
type Instrumented struct {
	Storage

	observer Observer
}

// NewInstrumented wraps s.
func NewInstrumented(s Storage, observer Observer) *Instrumented {
	return &Instrumented{Storage: s, observer: observer}
}

// observe must be deferred through a closure so it sees the final err.
func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.observer.ObserveStorage(op, err, time.Since(start))
}

func (i *Instrumented) Get(ctx context.Context, key badge.Key) (data []byte, err error) {
	start := time.Now()
	defer func() { i.observe(OpGet, start, err) }()
	return i.Storage.Get(ctx, key)
}

func (i *Instrumented) Put(ctx context.Context, key badge.Key, data []byte) (err error) {
	start := time.Now()
	defer func() { i.observe(OpPut, start, err) }()
	return i.Storage.Put(ctx, key, data)
}

func (i *Instrumented) Delete(ctx context.Context, key badge.Key) (err error) {
	start := time.Now()
	defer func() { i.observe(OpDelete, start, err) }()
	return i.Storage.Delete(ctx, key)
}

func (i *Instrumented) Exists(ctx context.Context, key badge.Key) (ok bool, err error) {
	start := time.Now()
	defer func() { i.observe(OpExists, start, err) }()
	return i.Storage.Exists(ctx, key)
}

func (i *Instrumented) List(ctx context.Context) (keys []badge.Key, err error) {
	start := time.Now()
	defer func() { i.observe(OpList, start, err) }()
	return i.Storage.List(ctx)
}
