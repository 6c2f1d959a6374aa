package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/voxcut/voxcut/internal/observability"
)

// subscriberBuffer bounds each subscriber queue. A subscriber whose
// buffer is full is slow; its delivery is dropped for that event so
// one stalled WebSocket never blocks the pipelines.
const subscriberBuffer = 100

// Subscription is a live subscriber handle.
type Subscription struct {
	ID string
	C  <-chan *TaskEvent

	ch chan *TaskEvent
}

// Bus broadcasts task events to subscribers. Publish never blocks
// beyond a bounded per-subscriber enqueue attempt.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	logger      *slog.Logger
	dropped     atomic.Uint64
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string]*Subscription),
		logger:      observability.WithComponent(logger, "events"),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan *TaskEvent, subscriberBuffer)
	sub := &Subscription{
		ID: ulid.Make().String(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "subscriber_id", sub.ID, "total", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	existing, ok := b.subscribers[sub.ID]
	if ok {
		delete(b.subscribers, sub.ID)
	}
	b.mu.Unlock()

	if ok {
		close(existing.ch)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish broadcasts an event to all subscribers. The message is
// redacted and the timestamp stamped before delivery. Fire and
// forget: slow subscribers miss the event.
func (b *Bus) Publish(event *TaskEvent) {
	if event == nil {
		return
	}
	event.Message = observability.Redact(event.Message)
	event.stamp()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("dropping event for slow subscriber",
				"subscriber_id", sub.ID, "type", event.Type,
				"scope", event.Scope, "task_id", event.TaskID)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// DroppedCount returns how many deliveries were dropped for slow
// subscribers since the bus was created.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}
