// Package types defines the core data structures shared across sentryd:
// checkables (hosts and services), check results, cluster endpoints and
// zones, and the replicated attributes that travel over the cluster bus.
package types

import (
	"time"
)

// StateType distinguishes a transient (soft) state from a confirmed (hard) one.
type StateType string

const (
	StateTypeSoft StateType = "soft"
	StateTypeHard StateType = "hard"
)

// ServiceState is the observed state of a checkable, derived from the most
// recent CheckResult's exit status.
type ServiceState int

const (
	StateOK ServiceState = iota
	StateWarning
	StateCritical
	StateUnknown
)

func (s ServiceState) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateWarning:
		return "Warning"
	case StateCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// AcknowledgementType distinguishes a one-shot acknowledgement from one that
// survives further state changes of the same severity.
type AcknowledgementType int

const (
	AckNone AcknowledgementType = iota
	AckNormal
	AckSticky
)

// CheckResult is the immutable outcome of one plugin invocation.
//
// Exit status mapping: 0 -> OK, 1 -> Warning, 2 -> Critical, anything else
// (including signal termination, reported as 128) -> Unknown.
type CheckResult struct {
	ScheduleStart   time.Time
	ScheduleEnd     time.Time
	ExecutionStart  time.Time
	ExecutionEnd    time.Time
	ExitStatus      int
	Output          string
	PerformanceData map[string]string
	State           ServiceState
}

// Duration is a convenience accessor for the plugin's wall-clock runtime.
func (r CheckResult) Duration() time.Duration {
	return r.ExecutionEnd.Sub(r.ExecutionStart)
}

// StateFromExitStatus maps a plugin's exit status to a service state.
func StateFromExitStatus(exitStatus int) ServiceState {
	switch exitStatus {
	case 0:
		return StateOK
	case 1:
		return StateWarning
	case 2:
		return StateCritical
	default:
		return StateUnknown
	}
}

// Comment is a free-text annotation attached to a checkable.
type Comment struct {
	ID         string
	Author     string
	Text       string
	EntryTime  time.Time
	Expires    bool
	ExpireTime time.Time
}

// Downtime schedules a checkable's notifications to be suppressed for a
// window of time. A fixed downtime runs from StartTime to EndTime; a
// flexible (non-fixed) downtime starts its Duration countdown only once
// triggered.
type Downtime struct {
	ID          string
	Author      string
	Comment     string
	StartTime   time.Time
	EndTime     time.Time
	Fixed       bool
	Duration    time.Duration
	TriggeredBy string
	TriggerTime time.Time
	Triggers    []string
}

// IsInEffect reports whether the downtime is currently suppressing
// notifications for the given instant.
func (d Downtime) IsInEffect(now time.Time) bool {
	if d.Fixed {
		return !now.Before(d.StartTime) && !now.After(d.EndTime)
	}
	if d.TriggerTime.IsZero() {
		return false
	}
	return !now.Before(d.TriggerTime) && now.Before(d.TriggerTime.Add(d.Duration))
}

// Acknowledgement records that a human has accepted responsibility for a
// checkable's current non-OK state.
type Acknowledgement struct {
	Author     string
	Text       string
	Type       AcknowledgementType
	Expires    bool
	ExpireTime time.Time
}

// StateFilter is a bitset of states that a dependency treats as "parent up".
type StateFilter int

const (
	FilterOK StateFilter = 1 << iota
	FilterWarning
	FilterCritical
	FilterUnknown
)

// DefaultStateFilter is the default dependency state filter: any state
// other than Critical keeps the dependency satisfied.
const DefaultStateFilter = FilterOK | FilterWarning | FilterUnknown

// Dependency is an edge in the reachability graph: this checkable depends
// on Parent being in a state matching StateFilter.
type Dependency struct {
	ParentHost    string
	ParentService string // empty means "depends on the host itself"
	StateFilter   StateFilter
}

// Satisfied reports whether the parent's current state keeps this
// dependency from marking the child unreachable.
func (d Dependency) Satisfied(parentState ServiceState) bool {
	switch parentState {
	case StateOK:
		return d.StateFilter&FilterOK != 0
	case StateWarning:
		return d.StateFilter&FilterWarning != 0
	case StateCritical:
		return d.StateFilter&FilterCritical != 0
	default:
		return d.StateFilter&FilterUnknown != 0
	}
}

// Service is the central checkable entity. Identity is (HostName, Name).
//
// Config fields are immutable at runtime. State fields are mutable,
// replicated over the cluster bus, and persisted across restarts.
type Service struct {
	// Config (immutable at runtime)
	HostName         string
	Name             string
	CheckCommand     []string
	Macros           map[string]string
	CheckInterval    time.Duration
	RetryInterval    time.Duration
	MaxCheckAttempts int
	Authority        []string // endpoint name patterns, in priority order
	Dependencies     []Dependency

	// State (mutable, replicated, persisted)
	State                 ServiceState
	StateType             StateType
	CurrentAttempt        int
	NextCheck             time.Time
	LastCheckResult       *CheckResult
	LastStateChange       time.Time
	LastHardStateChange   time.Time
	EnableActiveChecks    bool
	EnablePassiveChecks   bool
	EnableNotifications   bool
	EnableFlapping        bool
	NextNotification      time.Time
	ForceNextCheck        bool
	ForceNextNotification bool
	Acknowledgement       *Acknowledgement
	Comments              map[string]*Comment
	Downtimes             map[string]*Downtime
}

// Key returns the object registry key for this service.
func (s *Service) Key() string { return s.HostName + "!" + s.Name }

// Host is a container for services plus its own dependency set. A host's
// "up"/"reachable" status is derived from a configured subset of its
// services; it has no state of its own beyond that derivation.
type Host struct {
	Name                string
	Labels              map[string]string
	Dependencies        []Dependency
	CheckServices       []string // service names whose state determines host up/down
	EnableNotifications bool
}

// Key returns the object registry key for this host.
func (h *Host) Key() string { return h.Name }

// Endpoint is a named participant in the cluster mesh, identified by the
// CN of its client certificate.
type Endpoint struct {
	Name              string
	Host              string
	Port              string
	Zone              string
	Connected         bool
	LastSeen          time.Time
	RemoteLogPosition float64 // highest ts we've acked to them
	LocalLogPosition  float64 // highest ts they've acked to us
	Subscriptions     map[string]bool
}

// Key returns the object registry key for this endpoint.
func (e *Endpoint) Key() string { return e.Name }

// Zone is a named group of endpoints, optionally parented by another zone.
// Used only by the cluster router for authority/reachability decisions.
type Zone struct {
	Name       string
	ParentZone string
	Endpoints  []string
}

// Key returns the object registry key for this zone.
func (z *Zone) Key() string { return z.Name }
