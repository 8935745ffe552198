/*
Package events implements the in-process event bus: a strongly-typed
publish/subscribe hub over a fixed enumeration of EventKind values.

Every state-affecting change in the engine — a check result, a next-check
recompute, a comment or downtime edit, an acknowledgement, an inbound
cluster message — is one Publish call. Delivery is synchronous on the
publisher's goroutine by default: Subscribe registers a plain Handler and
Publish calls it inline, in subscription order, over a copy-on-write
subscriber slice so Publish never blocks on a concurrent Subscribe.

A subscriber that must not stall the publisher wraps its handler with
Async before subscribing. (The cluster router does not: it subscribes its
handler synchronously.)

	bus := events.New()
	sink := events.Async(256, func(ev events.Event) { archive(ev) })
	unsubscribe := bus.Subscribe(sink, events.NewCheckResult, events.MessageReceived)
	defer unsubscribe()

	bus.Publish(events.Event{
		Kind:      events.NewCheckResult,
		ObjectKey: svc.Key(),
		Value:     result,
	})

Authority on an Event is empty for locally-originated changes and the
peer's endpoint name for changes applied from an inbound message; the
cluster router uses this to avoid relaying a message back to the peer
that sent it.
*/
package events
