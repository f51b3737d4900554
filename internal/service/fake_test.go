package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/events"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

type renderCall struct {
	label, value, color string
}

// fakeRenderer returns a deterministic SVG and fails for labels in failLabels.
type fakeRenderer struct {
	mu         sync.Mutex
	calls      []renderCall
	failLabels map[string]bool
	delay      time.Duration

	inFlight    int
	maxInFlight int
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{failLabels: make(map[string]bool)}
}

func svgFor(label, value, color string) []byte {
	return []byte(fmt.Sprintf("<svg>%s|%s|%s</svg>", label, value, color))
}

func (f *fakeRenderer) Render(ctx context.Context, label, value, color string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, renderCall{label, value, color})
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	fail := f.failLabels[label]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return nil, badge.RenderFailed("render service returned status 503", nil)
	}
	return svgFor(label, value, color), nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errDisk = errors.New("disk full")

// failingStorage fails Put for chosen keys and Delete for all keys when set.
type failingStorage struct {
	storage.Storage

	mu         sync.Mutex
	failPut    map[badge.Key]bool
	failDelete bool
	failGet    bool
}

func (f *failingStorage) Put(ctx context.Context, key badge.Key, data []byte) error {
	f.mu.Lock()
	fail := f.failPut[key]
	f.mu.Unlock()
	if fail {
		return errDisk
	}
	return f.Storage.Put(ctx, key, data)
}

func (f *failingStorage) Delete(ctx context.Context, key badge.Key) error {
	if f.failDelete {
		return errDisk
	}
	return f.Storage.Delete(ctx, key)
}

func (f *failingStorage) Get(ctx context.Context, key badge.Key) ([]byte, error) {
	if f.failGet {
		return nil, errDisk
	}
	return f.Storage.Get(ctx, key)
}

type failingPublisher struct {
	events.Noop
}

func (failingPublisher) Publish(ctx context.Context, e *events.Event) error {
	return errors.New("broker down")
}

type fixture struct {
	badges   *Badges
	renderer *fakeRenderer
	store    *failingStorage
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	fs, err := storage.NewFilesystemStorage(filepath.Join(t.TempDir(), "badges"))
	require.NoError(t, err)

	f := &fixture{
		renderer: newFakeRenderer(),
		store:    &failingStorage{Storage: fs, failPut: make(map[badge.Key]bool)},
	}

	cfg := Config{Renderer: f.renderer, Storage: f.store}
	for _, m := range mutate {
		m(&cfg)
	}

	f.badges, err = New(cfg)
	require.NoError(t, err)
	return f
}

// stored returns the content stored for name, or nil.
func (f *fixture) stored(t *testing.T, name string) []byte {
	t.Helper()
	data, err := f.store.Storage.Get(context.Background(), badge.KeyOf(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return data
}
