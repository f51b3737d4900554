package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher implements Publisher using Google Cloud Pub/Sub.
type PubSubPublisher struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	logger       *slog.Logger
}

// PubSubConfig holds configuration for creating a PubSubPublisher.
type PubSubConfig struct {
	// ProjectID is the GCP project ID
	ProjectID string

	// TopicName is the Pub/Sub topic name
	TopicName string

	// SubscriptionName is required to Subscribe
	SubscriptionName string

	// CreateIfNotExists creates the topic and subscription if they don't exist
	CreateIfNotExists bool

	Logger *slog.Logger
}

// NewPubSubPublisher creates a Pub/Sub client for the configured topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project ID is required")
	}
	if cfg.TopicName == "" {
		return nil, errors.New("topic name is required")
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)
	var sub *pubsub.Subscription
	if cfg.SubscriptionName != "" {
		sub = client.Subscription(cfg.SubscriptionName)
	}

	if cfg.CreateIfNotExists {
		if topic, sub, err = ensureTopology(ctx, client, topic, sub, cfg); err != nil {
			client.Close()
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PubSubPublisher{
		client:       client,
		topic:        topic,
		subscription: sub,
		logger:       logger,
	}, nil
}

func ensureTopology(ctx context.Context, client *pubsub.Client, topic *pubsub.Topic, sub *pubsub.Subscription, cfg PubSubConfig) (*pubsub.Topic, *pubsub.Subscription, error) {
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check topic existence: %w", err)
	}
	if !exists {
		if topic, err = client.CreateTopic(ctx, cfg.TopicName); err != nil {
			return nil, nil, fmt.Errorf("failed to create topic: %w", err)
		}
	}

	if sub == nil {
		return topic, nil, nil
	}

	exists, err = sub.Exists(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check subscription existence: %w", err)
	}
	if !exists {
		sub, err = client.CreateSubscription(ctx, cfg.SubscriptionName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 60 * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create subscription: %w", err)
		}
	}

	return topic, sub, nil
}

// Publish sends the event and waits for the server to accept it.
func (p *PubSubPublisher) Publish(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("event cannot be nil")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"action": string(e.Action),
			"name":   e.Name,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe receives events until ctx is done. Events whose handler fails
// are nacked for redelivery.
func (p *PubSubPublisher) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if p.subscription == nil {
		return errors.New("subscription name is required to subscribe")
	}

	p.subscription.ReceiveSettings.MaxOutstandingMessages = 10
	p.subscription.ReceiveSettings.NumGoroutines = 4

	err := p.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			// malformed events would be redelivered forever
			p.logger.Error("failed to unmarshal event", "message_id", msg.ID, "error", err)
			msg.Ack()
			return
		}

		if err := handler(ctx, &e); err != nil {
			p.logger.Error("event handler failed", "event_id", e.ID, "error", err)
			msg.Nack()
			return
		}

		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("subscription receive error: %w", err)
	}

	return nil
}

// Close flushes pending publishes and releases the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
