package persistence

import (
	"time"

	"github.com/wardenhq/sentryd/pkg/types"
)

// timeLayout is used for every persisted timestamp. RFC3339Nano round
// trips through JSON without losing sub-second precision.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func serviceStateOf(svc *types.Service) serviceState {
	return serviceState{
		State:                 svc.State,
		StateType:             svc.StateType,
		CurrentAttempt:        svc.CurrentAttempt,
		NextCheck:             formatTime(svc.NextCheck),
		LastCheckResult:       svc.LastCheckResult,
		LastStateChange:       formatTime(svc.LastStateChange),
		LastHardStateChange:   formatTime(svc.LastHardStateChange),
		EnableActiveChecks:    svc.EnableActiveChecks,
		EnablePassiveChecks:   svc.EnablePassiveChecks,
		EnableNotifications:   svc.EnableNotifications,
		EnableFlapping:        svc.EnableFlapping,
		NextNotification:      formatTime(svc.NextNotification),
		ForceNextCheck:        svc.ForceNextCheck,
		ForceNextNotification: svc.ForceNextNotification,
		Acknowledgement:       svc.Acknowledgement,
		Comments:              svc.Comments,
		Downtimes:             svc.Downtimes,
	}
}

func applyServiceState(svc *types.Service, state serviceState) {
	svc.State = state.State
	svc.StateType = state.StateType
	svc.CurrentAttempt = state.CurrentAttempt
	svc.NextCheck = parseTime(state.NextCheck)
	svc.LastCheckResult = state.LastCheckResult
	svc.LastStateChange = parseTime(state.LastStateChange)
	svc.LastHardStateChange = parseTime(state.LastHardStateChange)
	svc.EnableActiveChecks = state.EnableActiveChecks
	svc.EnablePassiveChecks = state.EnablePassiveChecks
	svc.EnableNotifications = state.EnableNotifications
	svc.EnableFlapping = state.EnableFlapping
	svc.NextNotification = parseTime(state.NextNotification)
	svc.ForceNextCheck = state.ForceNextCheck
	svc.ForceNextNotification = state.ForceNextNotification
	svc.Acknowledgement = state.Acknowledgement
	svc.Comments = state.Comments
	svc.Downtimes = state.Downtimes
}

func endpointStateOf(ep *types.Endpoint) endpointState {
	return endpointState{
		LastSeen:          formatTime(ep.LastSeen),
		RemoteLogPosition: ep.RemoteLogPosition,
		LocalLogPosition:  ep.LocalLogPosition,
		Subscriptions:     ep.Subscriptions,
	}
}

func applyEndpointState(ep *types.Endpoint, state endpointState) {
	ep.LastSeen = parseTime(state.LastSeen)
	ep.RemoteLogPosition = state.RemoteLogPosition
	ep.LocalLogPosition = state.LocalLogPosition
	ep.Subscriptions = state.Subscriptions
}
