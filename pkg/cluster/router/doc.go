// Package router implements the cluster router: it decides, for every
// service, which endpoint is authoritative to execute its checks, and
// it bridges the local event bus with the per-peer replay log and
// live connections.
//
// A Router subscribes to every event the engine publishes. Locally
// originated events (Authority == "") and events received from a peer
// that isn't this process are relayed: appended to the replay log of
// every other configured peer and, if that peer is currently connected,
// sent immediately. Events wrapping an inbound MessageReceived go
// through applyInbound instead, which checks the sender is
// authoritative for the named object before mutating the registry and
// republishing the change locally with Authority set to the sender.
//
// Authority resolution walks a service's configured endpoint-name
// patterns in priority order; within a pattern, endpoints in sorted
// key order. The first pattern match that is this process itself, or
// a connected peer reachable through the zone graph, wins. A service
// with no reachable authoritative endpoint has no authority owner
// until connectivity or zone configuration changes.
//
// Acks flow the other way: applyInbound records the highest message
// timestamp accepted from each sender, and sends that peer a
// cluster::SetLogPosition either every ackEveryMessages applied
// messages or on the ackInterval timer, whichever comes first. The
// sweep loop then truncates each peer's replay-log files once every
// endpoint's acknowledged LocalLogPosition has passed them.
package router
