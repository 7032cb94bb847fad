// ABOUTME: In-memory fan-out event bus for server lifecycle observability.
// ABOUTME: Publishes typed events to all subscribers; slow subscribers drop.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Kind identifies the shape of an Event's payload.
type Kind string

const (
	KindConnectionOpened Kind = "connection.opened"
	KindConnectionClosed Kind = "connection.closed"
	KindRequestAccepted  Kind = "request.accepted"
	KindRequestCompleted Kind = "request.completed"
	KindToolRegistered   Kind = "tool.registered"
	KindServerDraining   Kind = "server.draining"
)

// Event is a single typed occurrence on the bus. Fields not relevant to Kind
// are left zero-valued; consumers switch on Kind before reading them.
type Event struct {
	Kind      Kind
	At        time.Time
	Transport string // "http" | "ws" | "sse"

	// connection.opened / connection.closed
	ConnectionID string
	Reason       string // close reason, empty on open

	// request.accepted / request.completed
	RequestID  string
	Method     string
	DurationMS int64
	ErrCode    int // JSON-RPC error code, 0 on success

	// tool.registered
	ToolName  string
	Namespace string

	// server.draining
	GracePeriodMS int64
}

// Bus provides in-memory pub/sub for Events. There is a single global topic;
// callers that only care about a subset of Kinds filter in their consumer
// loop, matching the "purely informational" role of the bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event // subID -> channel
	logger      *slog.Logger
}

// NewBus creates an event bus. Pass nil logger for the default logger.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber and returns a receive channel plus a
// subscription ID for later Unsubscribe. The subscription is automatically
// cleaned up when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish fans an event out to every current subscriber. Non-blocking: a
// subscriber whose channel is full has this event dropped for it, and the
// drop is counted in the log so operators can see a backed-up consumer.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- evt:
		default:
			b.logger.Debug("dropped event for slow subscriber", "kind", evt.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Idempotent.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.logger.Debug("event bus closed")
}
