/*
Package persistence dumps and restores the mutable "state" attributes of
every registered Service, Host, and Endpoint to a single newline-delimited
JSON file, so that a restart or failover reproduces the previous
cluster view without re-deriving it from scratch.

Each line is `{"type": T, "name": N, "attrs": {...}}`. Dump is called on
shutdown; Restore must run after config load (so the named objects
already exist in the registry) and before the scheduler, endpoint
connections, or cluster router start. An object no longer present in
the registry, or a line that fails to parse, is logged and skipped —
never fatal.
*/
package persistence
