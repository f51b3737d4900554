package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisMaxLen bounds the stream; older events are trimmed approximately.
	redisMaxLen = 10000

	redisReadCount = 10
	redisBlock     = 5 * time.Second
)

// RedisPublisher implements Publisher using Redis Streams.
// Watchers read through a consumer group and acknowledge handled events.
type RedisPublisher struct {
	client        *redis.Client
	streamKey     string
	consumerGroup string
	consumerName  string
	logger        *slog.Logger
}

// RedisConfig holds configuration for creating a RedisPublisher.
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string

	// Password is the Redis password (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// StreamKey is the Redis stream name
	StreamKey string

	// ConsumerGroup is created with the stream when set, so events published
	// before the first watcher starts are kept for it
	ConsumerGroup string

	// ConsumerName is required to Subscribe
	ConsumerName string

	Logger *slog.Logger
}

// NewRedisPublisher connects to Redis and creates the consumer group if
// one is configured.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.StreamKey == "" {
		return nil, errors.New("stream key is required")
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

	if cfg.ConsumerGroup != "" {
		// "$": the group only sees events published from now on
		err := client.XGroupCreateMkStream(ctx, cfg.StreamKey, cfg.ConsumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			client.Close()
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisPublisher{
		client:        client,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		consumerName:  cfg.ConsumerName,
		logger:        logger,
	}, nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Publish appends the event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("event cannot be nil")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		MaxLen: redisMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":   string(data),
			"action": string(e.Action),
			"name":   e.Name,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event to redis stream: %w", err)
	}

	return nil
}

// Subscribe reads new events through the consumer group until ctx is done.
// Events whose handler fails stay pending and are not acknowledged.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	if p.consumerGroup == "" {
		return errors.New("consumer group is required to subscribe")
	}
	if p.consumerName == "" {
		return errors.New("consumer name is required to subscribe")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// ">": only events never delivered to another consumer
		streams, err := p.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.consumerGroup,
			Consumer: p.consumerName,
			Streams:  []string{p.streamKey, ">"},
			Count:    redisReadCount,
			Block:    redisBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Error("failed to read event stream", "stream", p.streamKey, "error", err)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				if err := p.processMessage(ctx, message, handler); err != nil {
					p.logger.Error("failed to process event",
						"stream", p.streamKey,
						"message_id", message.ID,
						"error", err,
					)
				}
			}
		}
	}
}

func (p *RedisPublisher) processMessage(ctx context.Context, msg redis.XMessage, handler Handler) error {
	data, ok := msg.Values["data"].(string)
	if !ok {
		// unparseable messages are acknowledged so they leave the pending list
		_ = p.client.XAck(ctx, p.streamKey, p.consumerGroup, msg.ID)
		return errors.New("message data field is not a string")
	}

	var e Event
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		_ = p.client.XAck(ctx, p.streamKey, p.consumerGroup, msg.ID)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if err := handler(ctx, &e); err != nil {
		return fmt.Errorf("handler failed to process event %s: %w", e.ID, err)
	}

	if err := p.client.XAck(ctx, p.streamKey, p.consumerGroup, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge event: %w", err)
	}

	return nil
}

// Close releases resources held by the RedisPublisher.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
