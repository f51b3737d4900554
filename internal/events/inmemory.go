package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned when publishing to a closed publisher.
	ErrClosed = errors.New("publisher is closed")

	// ErrBufferFull is returned when no subscriber keeps up with Publish.
	ErrBufferFull = errors.New("event buffer is full")
)

// InMemoryPublisher delivers events over a buffered channel to subscribers
// in the same process.
type InMemoryPublisher struct {
	ch     chan *Event
	closed bool
	mu     sync.RWMutex
	logger *slog.Logger
}

// InMemoryConfig holds configuration for creating an InMemoryPublisher.
type InMemoryConfig struct {
	// BufferSize is the channel buffer size (default: 100)
	BufferSize int

	Logger *slog.Logger
}

// NewInMemoryPublisher creates a new InMemoryPublisher.
func NewInMemoryPublisher(cfg InMemoryConfig) *InMemoryPublisher {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &InMemoryPublisher{
		ch:     make(chan *Event, bufferSize),
		logger: logger,
	}
}

// Publish queues e. It never waits for a subscriber: when the buffer is full
// the event is dropped and ErrBufferFull returned.
func (p *InMemoryPublisher) Publish(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("event cannot be nil")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.ch <- e:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("dropping event %s for %s: %w", e.ID, e.Name, ErrBufferFull)
	}
}

// Subscribe consumes queued events until ctx is done or the publisher is
// closed. Failed events are logged and dropped.
func (p *InMemoryPublisher) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	for {
		select {
		case e, ok := <-p.ch:
			if !ok {
				return nil
			}
			if err := handler(ctx, e); err != nil {
				p.logger.Error("event handler failed",
					"event_id", e.ID,
					"action", string(e.Action),
					"name", e.Name,
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops publishing; subscribers drain what is buffered and return.
func (p *InMemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.ch)
	return nil
}
