/*
Package schedule maintains each service's next_check time and dispatches
due checks to the process runner with bounded concurrency.

# Queue

A container/heap min-heap orders services by next_check, tie-broken by
service key. A ticker pops every due item on each tick and, as long as the
dispatcher still has a free concurrency slot, hands it off in its own
goroutine; once the slot bound is hit the remaining due items wait for the
next tick rather than piling up behind an already-saturated runner.

# Dispatch

Before dispatch, the Authority interface is consulted — on a clustered
deployment this is the cluster router's authority rule; standalone
callers can use AlwaysAuthoritative. A non-authoritative service is never
handed to the Dispatcher; it is simply re-queued so the check can be
picked up again once authority changes.

# Re-queueing

After a dispatched check completes, statemachine.Apply is run under
the registry's per-object lock, a NewCheckResult event is published, and
next_check is recomputed: now + retry_interval while Soft, now +
check_interval while Hard. A service that has never been scheduled gets a
next_check randomized within [now, now+check_interval) so a cluster
restart doesn't check every service in lockstep.
*/
package schedule
