package events

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus() *Bus {
	return NewBus(slog.New(slog.DiscardHandler))
}

func TestPublishFanOut(t *testing.T) {
	bus := testBus()
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(&TaskEvent{Type: TypeProgress, Scope: "generate_video", ProjectID: "p1", TaskID: "t1", Progress: 42})

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.C
		assert.Equal(t, TypeProgress, ev.Type)
		assert.Equal(t, 42, ev.Progress)
		assert.NotEmpty(t, ev.Timestamp)
	}
}

func TestPublishDropsSlowSubscriber(t *testing.T) {
	bus := testBus()
	slow := bus.Subscribe()
	defer bus.Unsubscribe(slow)

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(&TaskEvent{Type: TypeProgress, TaskID: "t1", Progress: i})
	}

	assert.Equal(t, uint64(10), bus.DroppedCount())
	assert.Len(t, slow.C, subscriberBuffer)
}

func TestPublishRedactsMessage(t *testing.T) {
	bus := testBus()
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(&TaskEvent{Type: TypeError, Message: "provider rejected api_key=sk-123"})
	ev := <-sub.C
	assert.NotContains(t, ev.Message, "sk-123")
	assert.Contains(t, ev.Message, "[REDACTED]")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	bus := testBus()
	sub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())
	// double unsubscribe must not panic on the closed channel
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	// publishing with no subscribers is a no-op
	bus.Publish(&TaskEvent{Type: TypeCompleted})
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, (&TaskEvent{Type: TypeCompleted}).IsTerminal())
	assert.True(t, (&TaskEvent{Type: TypeError}).IsTerminal())
	assert.True(t, (&TaskEvent{Type: TypeCancelled}).IsTerminal())
	assert.False(t, (&TaskEvent{Type: TypeProgress}).IsTerminal())
	assert.False(t, (&TaskEvent{Type: TypeWarning}).IsTerminal())
}
