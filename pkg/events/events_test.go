package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversSynchronously(t *testing.T) {
	bus := New()
	var got Event
	bus.Subscribe(func(ev Event) { got = ev })

	bus.Publish(Event{Kind: NewCheckResult, ObjectKey: "host!svc"})

	assert.Equal(t, NewCheckResult, got.Kind)
	assert.Equal(t, "host!svc", got.ObjectKey)
	assert.False(t, got.Timestamp.IsZero())
}

func TestSubscribeFiltersByKind(t *testing.T) {
	bus := New()
	var calls int
	bus.Subscribe(func(ev Event) { calls++ }, CommentAdded)

	bus.Publish(Event{Kind: NewCheckResult})
	bus.Publish(Event{Kind: CommentAdded})

	assert.Equal(t, 1, calls)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	var calls int
	unsubscribe := bus.Subscribe(func(ev Event) { calls++ })
	unsubscribe()

	bus.Publish(Event{Kind: NewCheckResult})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestAsyncHandlerDoesNotBlockPublish(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	var seen []EventKind
	release := make(chan struct{})

	async := Async(4, func(ev Event) {
		<-release
		mu.Lock()
		seen = append(seen, ev.Kind)
		mu.Unlock()
	})
	bus.Subscribe(async)

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: NewCheckResult})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow async subscriber")
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "NewCheckResult", NewCheckResult.String())
	assert.Equal(t, "MessageReceived", MessageReceived.String())
}
