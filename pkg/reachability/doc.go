/*
Package reachability derives service and host reachability from the
Dependency graph. Reachability is never a stored attribute — every call
recomputes it from the registry's current state.

Service(reg, host, name) walks that service's host and its own Dependency
list recursively; Host(reg, name) evaluates the host's own dependencies
plus its configured CheckServices subset. Both tolerate dependency cycles
(a misconfiguration) by treating an already-visiting node as reachable,
rather than recursing forever.
*/
package reachability
