/*
Package registry is the object substrate that pkg/schedule and
pkg/cluster/router build on.

Every Service, Host, Endpoint, and Zone is registered exactly once under a
(type, name) key; the registry owns the object and hands out locked access
through the WithX and WithXRead helpers rather than raw pointers, so a
borrowed reference scoped by a lock on the object is enforced by the
API shape rather than by caller convention.

Attribute writes are not themselves observed by the registry; callers
mutate under With* and then call Notify, which fans a Signal out to every
subscriber (registered once, at wiring time, via Subscribe) synchronously
on the caller's goroutine — a subscriber that must not block publish
hands off to its own goroutine rather than ask the registry to do it for
it.
*/
package registry
