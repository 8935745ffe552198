package events

import (
	"sync"
	"time"
)

// EventKind is the closed set of event kinds the engine ever publishes:
// every state-affecting change is one of these, never an ad-hoc string.
type EventKind int

const (
	NewCheckResult EventKind = iota
	NextCheckChanged
	NextNotificationChanged
	ForceNextCheckChanged
	ForceNextNotificationChanged
	EnableActiveChecksChanged
	EnablePassiveChecksChanged
	EnableNotificationsChanged
	EnableFlappingChanged
	CommentAdded
	CommentRemoved
	DowntimeAdded
	DowntimeRemoved
	AcknowledgementSet
	AcknowledgementCleared
	MessageReceived
)

func (k EventKind) String() string {
	switch k {
	case NewCheckResult:
		return "NewCheckResult"
	case NextCheckChanged:
		return "NextCheckChanged"
	case NextNotificationChanged:
		return "NextNotificationChanged"
	case ForceNextCheckChanged:
		return "ForceNextCheckChanged"
	case ForceNextNotificationChanged:
		return "ForceNextNotificationChanged"
	case EnableActiveChecksChanged:
		return "EnableActiveChecksChanged"
	case EnablePassiveChecksChanged:
		return "EnablePassiveChecksChanged"
	case EnableNotificationsChanged:
		return "EnableNotificationsChanged"
	case EnableFlappingChanged:
		return "EnableFlappingChanged"
	case CommentAdded:
		return "CommentAdded"
	case CommentRemoved:
		return "CommentRemoved"
	case DowntimeAdded:
		return "DowntimeAdded"
	case DowntimeRemoved:
		return "DowntimeRemoved"
	case AcknowledgementSet:
		return "AcknowledgementSet"
	case AcknowledgementCleared:
		return "AcknowledgementCleared"
	case MessageReceived:
		return "MessageReceived"
	default:
		return "Unknown"
	}
}

// Event carries the affected object, the new value where applicable, and
// the originating authority (empty for a locally-produced change).
type Event struct {
	Kind      EventKind
	ObjectKey string // registry key of the affected Service/Host/Endpoint
	Value     any    // new value, meaning depends on Kind
	Authority string // endpoint name that originated the change; empty = local
	Timestamp time.Time
}

// Handler receives one published event. It must not block for long —
// the default delivery is synchronous on the publisher's goroutine, so a
// slow handler stalls every other subscriber and the publisher itself.
// Wrap a handler with Async to decouple it.
type Handler func(Event)

type subscription struct {
	kinds   map[EventKind]bool // nil means "all kinds"
	handler Handler
}

func (s *subscription) wants(kind EventKind) bool {
	if s.kinds == nil {
		return true
	}
	return s.kinds[kind]
}

// Bus is the in-process publish/subscribe hub. Publish fans out
// synchronously over a copy-on-write subscriber slice, so Publish never
// blocks on Subscribe and a subscriber list read during fan-out is never
// mutated underneath it.
type Bus struct {
	mu   sync.Mutex
	subs []*subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers handler for the given kinds. No kinds means every
// kind. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler, kinds ...EventKind) (unsubscribe func()) {
	var kindSet map[EventKind]bool
	if len(kinds) > 0 {
		kindSet = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			kindSet[k] = true
		}
	}
	sub := &subscription{kinds: kindSet, handler: handler}

	b.mu.Lock()
	next := make([]*subscription, len(b.subs)+1)
	copy(next, b.subs)
	next[len(b.subs)] = sub
	b.subs = next
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		next := make([]*subscription, 0, len(b.subs))
		for _, s := range b.subs {
			if s != sub {
				next = append(next, s)
			}
		}
		b.subs = next
	}
}

// Publish stamps Timestamp if unset and synchronously invokes every
// matching subscriber's handler, in subscription order.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.wants(ev.Kind) {
			sub.handler(ev)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Async wraps handler so that Publish enqueues onto a buffered channel
// instead of calling it inline, and a dedicated goroutine drains the
// channel into handler. Use this for subscribers that must never block
// the publisher; events are
// dropped, not queued unbounded, if the subscriber falls behind the buffer size.
func Async(bufferSize int, handler Handler) Handler {
	ch := make(chan Event, bufferSize)
	go func() {
		for ev := range ch {
			handler(ev)
		}
	}()
	return func(ev Event) {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than block the publisher
		}
	}
}
