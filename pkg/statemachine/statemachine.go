// Package statemachine turns a raw plugin result into a service state
// transition with soft/hard semantics and attempt counting.
package statemachine

import (
	"time"

	"github.com/wardenhq/sentryd/pkg/types"
)

// Transition is the outcome of applying a CheckResult to a Service: the
// previous and new state/type, whether a state change occurred, and
// whether it was a hard state change (the two are not the same thing —
// a soft state change never flips the externally-visible hard state).
type Transition struct {
	OldState     types.ServiceState
	NewState     types.ServiceState
	OldStateType types.StateType
	NewStateType types.StateType
	Attempt      int
	StateChanged bool
	HardChanged  bool
}

// Apply mutates svc in place per spec and returns the Transition describing
// what happened. It is a pure function over its arguments aside from that
// mutation: no I/O, no locking — callers (the scheduler, the cluster
// router applying an inbound check-result message) hold whatever lock
// the registry requires around the call.
func Apply(svc *types.Service, result types.CheckResult) Transition {
	old := svc.State
	oldType := svc.StateType
	newState := result.State

	t := Transition{
		OldState:     old,
		OldStateType: oldType,
		NewState:     newState,
	}

	switch {
	case newState == types.StateOK:
		svc.StateType = types.StateTypeHard
		svc.CurrentAttempt = 1
		t.StateChanged = old != newState
		t.HardChanged = t.StateChanged

	case svc.CurrentAttempt >= svc.MaxCheckAttempts:
		svc.StateType = types.StateTypeHard
		svc.CurrentAttempt = 1
		t.HardChanged = old != newState || oldType != types.StateTypeHard

	case oldType == types.StateTypeSoft || old == types.StateOK:
		svc.StateType = types.StateTypeSoft
		svc.CurrentAttempt++
		t.StateChanged = true

	default:
		// Already Hard and non-OK: spec's asymmetric branch resets the
		// attempt counter to 1 rather than leaving it where it sat,
		// even though the service never left Hard. See DESIGN.md for
		// why this is kept exactly as described rather than "fixed".
		svc.CurrentAttempt = 1
		svc.StateType = types.StateTypeHard
		t.HardChanged = old != newState
	}

	now := result.ExecutionEnd
	if now.IsZero() {
		now = time.Now()
	}

	if t.StateChanged {
		svc.LastStateChange = now
	}
	if t.HardChanged {
		svc.LastHardStateChange = now
	}

	svc.State = newState
	resultCopy := result
	svc.LastCheckResult = &resultCopy

	t.NewStateType = svc.StateType
	t.Attempt = svc.CurrentAttempt

	return t
}
