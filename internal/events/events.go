// Package events publishes badge change notifications to watchers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/config"
)

// Action is what happened to a badge.
type Action string

const (
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event describes one badge change.
type Event struct {
	ID     string `json:"id"`
	Action Action `json:"action"`

	// Name is the badge name as requested by the client
	Name string `json:"name"`

	// Key is the hex storage key of the badge
	Key string `json:"key"`

	// Location is the public path of the badge; empty for deletions
	Location string `json:"location,omitempty"`

	Time time.Time `json:"time"`
}

// NewEvent creates an event for the badge called name.
func NewEvent(action Action, name string) *Event {
	e := &Event{
		ID:     uuid.NewString(),
		Action: action,
		Name:   name,
		Key:    badge.KeyOf(name).String(),
		Time:   time.Now().UTC(),
	}
	if action != ActionDeleted {
		e.Location = "/badges/" + name
	}
	return e
}

// Handler processes one event. Returning an error asks the transport to
// redeliver, where it supports that.
type Handler func(ctx context.Context, e *Event) error

// Publisher defines the interface for event transports.
// Implementations include Redis Streams, GCP Pub/Sub, an in-memory channel
// and a no-op publisher.
type Publisher interface {
	// Publish sends an event to all watchers.
	Publish(ctx context.Context, e *Event) error

	// Subscribe calls handler for each received event.
	// This method blocks until the context is cancelled or an unrecoverable error occurs.
	Subscribe(ctx context.Context, handler Handler) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Options configures New.
type Options struct {
	// ConsumerName identifies this process within a Redis consumer group
	ConsumerName string

	// CreateIfNotExists creates a missing Pub/Sub topic and subscription
	CreateIfNotExists bool

	Logger *slog.Logger
}

// New creates the publisher selected by cfg.
func New(ctx context.Context, cfg config.EventsConfig, opts Options) (Publisher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch cfg.Type {
	case config.EventsTypeNone, "":
		return Noop{}, nil
	case config.EventsTypeInMemory:
		return NewInMemoryPublisher(InMemoryConfig{Logger: opts.Logger}), nil
	case config.EventsTypeRedis:
		return NewRedisPublisher(ctx, RedisConfig{
			Address:       cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			StreamKey:     cfg.RedisStream,
			ConsumerGroup: cfg.RedisGroup,
			ConsumerName:  opts.ConsumerName,
			Logger:        opts.Logger,
		})
	case config.EventsTypePubSub:
		return NewPubSubPublisher(ctx, PubSubConfig{
			ProjectID:         cfg.PubSubProjectID,
			TopicName:         cfg.PubSubTopicID,
			SubscriptionName:  cfg.PubSubSubscription,
			CreateIfNotExists: opts.CreateIfNotExists,
			Logger:            opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported events type: %s", cfg.Type)
	}
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(ctx context.Context, e *Event) error {
	return nil
}

// Subscribe blocks until ctx is done; no event ever arrives.
func (Noop) Subscribe(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Noop) Close() error {
	return nil
}
