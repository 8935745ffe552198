/*
Package types defines the core data structures used throughout sentryd.

This package contains the domain model shared by every other package: the
checkable hierarchy (Host, Service), the immutable CheckResult a plugin
invocation produces, and the cluster-facing types (Endpoint, Zone) that the
replication layer uses to decide who may check what.

# Architecture

The types package is the foundation everything else builds on. It defines:

  - Checkables: Host and Service, split into Config (immutable at runtime)
    and State (mutable, replicated, persisted) fields
  - CheckResult: the immutable tuple a plugin invocation produces
  - Cluster topology: Endpoint (one peer, identified by certificate CN)
    and Zone (a named group of endpoints)
  - Operational overlays: Comment, Downtime, Acknowledgement
  - The dependency graph used to derive reachability

# Core Types

Service:
  - Identity is (HostName, Name); Key() returns the registry lookup string.
  - Config fields (CheckCommand, CheckInterval, RetryInterval,
    MaxCheckAttempts, Authority, Dependencies) never change after load.
  - State fields (State, StateType, CurrentAttempt, NextCheck, ...) are
    mutated by the state machine and the cluster router, persisted on
    shutdown, and carried over the wire to peers.

Host:
  - A container for services plus its own Dependencies. Up/reachable
    status is derived, never stored, from CheckServices.

CheckResult:
  - Exit status mapping: 0 -> OK, 1 -> Warning, 2 -> Critical, anything
    else (including signal termination) -> Unknown. See
    StateFromExitStatus.

Endpoint:
  - Identity is the CN of the peer's client certificate (Name).
  - RemoteLogPosition / LocalLogPosition track replay-log acknowledgement
    state (see pkg/cluster/replay).

Zone:
  - A named group of Endpoints with an optional ParentZone. Consulted only
    by pkg/cluster/router when deciding authority and relay targets.

Dependency / StateFilter:
  - Dependency is one edge in the reachability graph: a checkable depends
    on a parent being in a state matching StateFilter. Reachability itself
    is computed by pkg/reachability and is never stored on the Service or
    Host.

Comment, Downtime, Acknowledgement:
  - Operational overlays attached to a Service. A Downtime may be Fixed
    (runs StartTime..EndTime) or flexible (its Duration countdown starts
    only once triggered); see Downtime.IsInEffect.

# Usage

Constructing a Service:

	svc := &types.Service{
		HostName:         "db-01",
		Name:             "postgres",
		CheckCommand:     []string{"/usr/lib/monitoring-plugins/check_pgsql"},
		CheckInterval:    60 * time.Second,
		RetryInterval:    10 * time.Second,
		MaxCheckAttempts: 3,
		Authority:        []string{"endpoint-a", "endpoint-b"},
		State:            types.StateOK,
		StateType:        types.StateTypeHard,
		CurrentAttempt:   1,
		EnableActiveChecks:  true,
		EnableNotifications: true,
	}

Mapping a plugin's exit code to a state:

	result := types.CheckResult{
		ExitStatus: 2,
		Output:     "CRITICAL - load average: 9.1",
		State:      types.StateFromExitStatus(2),
	}

# Thread Safety

Types in this package carry no lock of their own. Callers that hold a
pointer obtained from pkg/registry are expected to have acquired the
object's lock first (see pkg/registry's doc comment) — types here are
plain data, not synchronized objects.

# See Also

  - pkg/registry for object identity, locking, and keyed lookup
  - pkg/statemachine for how CheckResult transitions a Service's state
  - pkg/reachability for how Dependency edges are evaluated
  - pkg/cluster/router for how Endpoint/Zone drive authority decisions
*/
package types
