// Package service implements the badge operations behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/events"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/render"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

const (
	// MaxAge is how long clients may cache a fetched badge.
	MaxAge = time.Hour

	// StatusSuccess is the status reported for stored badges.
	StatusSuccess = "success"

	// DefaultConcurrency bounds the renders of one coverage report.
	DefaultConcurrency = 4
)

// Badge is a stored badge ready to be served.
type Badge struct {
	Name        string
	Key         badge.Key
	Content     []byte
	ContentType string
	MaxAge      time.Duration
}

// UpdateResult reports where an updated badge can be fetched.
type UpdateResult struct {
	Status   string `json:"status"`
	Location string `json:"location"`
}

// Config holds the dependencies of Badges.
type Config struct {
	Renderer render.Renderer
	Storage  storage.Storage

	// Publisher receives change events (default: events.Noop)
	Publisher events.Publisher

	// Concurrency bounds the renders of one coverage report (default: DefaultConcurrency)
	Concurrency int

	Logger *slog.Logger
}

// Badges renders, stores and serves badges.
type Badges struct {
	renderer    render.Renderer
	store       storage.Storage
	publisher   events.Publisher
	concurrency int
	logger      *slog.Logger
}

// New creates a Badges service.
func New(cfg Config) (*Badges, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	b := &Badges{
		renderer:    cfg.Renderer,
		store:       cfg.Storage,
		publisher:   cfg.Publisher,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
	if b.publisher == nil {
		b.publisher = events.Noop{}
	}
	if b.concurrency <= 0 {
		b.concurrency = DefaultConcurrency
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b, nil
}

// Location returns the public path of the badge called name.
func Location(name string) string {
	return "/badges/" + name
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return badge.Invalid("invalid badge name", badge.FieldError{Field: "badgeName", Reason: "must not be empty"})
	}
	return nil
}

// Fetch returns the stored badge called name.
func (b *Badges) Fetch(ctx context.Context, name string) (*Badge, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	key := badge.KeyOf(name)
	content, err := b.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, badge.NotFound(name)
		}
		return nil, badge.StoreFailed(fmt.Sprintf("failed to read badge %q", name), err)
	}

	return &Badge{
		Name:        name,
		Key:         key,
		Content:     content,
		ContentType: storage.ContentType,
		MaxAge:      MaxAge,
	}, nil
}

// Update renders req and stores it as the badge called name, replacing any
// previous version.
func (b *Badges) Update(ctx context.Context, name string, req badge.Request) (*UpdateResult, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	svg, err := b.render(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := b.store.Put(ctx, badge.KeyOf(name), svg); err != nil {
		return nil, badge.StoreFailed(fmt.Sprintf("failed to store badge %q", name), err)
	}

	b.logger.Info("badge updated", "name", name, "label", req.Label, "bytes", len(svg))
	b.publish(ctx, events.NewEvent(events.ActionUpdated, name))

	return &UpdateResult{Status: StatusSuccess, Location: Location(name)}, nil
}

// Delete removes the badge called name. Deleting a missing badge succeeds.
func (b *Badges) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := b.store.Delete(ctx, badge.KeyOf(name)); err != nil {
		return badge.StoreFailed(fmt.Sprintf("failed to delete badge %q", name), err)
	}

	b.logger.Info("badge deleted", "name", name)
	b.publish(ctx, events.NewEvent(events.ActionDeleted, name))

	return nil
}

func (b *Badges) render(ctx context.Context, req badge.Request) ([]byte, error) {
	text, color := req.Value.Render()

	svg, err := b.renderer.Render(ctx, req.Label, text, color)
	if err != nil {
		var berr *badge.Error
		if errors.As(err, &berr) {
			return nil, berr
		}
		return nil, badge.RenderFailed("failed to render badge", err)
	}

	return svg, nil
}

// publish never fails the caller; the badge is already stored.
func (b *Badges) publish(ctx context.Context, e *events.Event) {
	if err := b.publisher.Publish(ctx, e); err != nil {
		b.logger.Warn("failed to publish badge event",
			"event_id", e.ID,
			"action", string(e.Action),
			"name", e.Name,
			"error", err,
		)
	}
}
