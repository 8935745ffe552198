package router

import (
	"encoding/json"
	"time"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/metrics"
	"github.com/wardenhq/sentryd/pkg/statemachine"
	"github.com/wardenhq/sentryd/pkg/types"
)

// applyInbound dispatches a received message by method: look up
// the target object, validate the sender is authoritative for it, and
// either apply the change with authority=sender or drop it silently.
func (r *Router) applyInbound(sender string, msg cluster.Message) {
	logger := log.WithComponent("router")

	if msg.Ts > 0 {
		if r.isStale(sender, msg.Ts) {
			// Already applied (or superseded) this ts from sender: at-least-once
			// delivery means we may see it again after a reconnect replay.
			metrics.DroppedStaleMessagesTotal.Inc()
			return
		}
		r.recordApplied(sender, msg.Ts)
	}

	switch msg.Method {
	case cluster.MethodHeartBeat:
		// Liveness is already handled by the endpoint connection's
		// last_seen tracking; nothing to apply.

	case cluster.MethodCheckResult:
		r.applyCheckResult(sender, msg)

	case cluster.MethodSetNextCheck:
		var params cluster.SetNextCheckParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		next := unixSeconds(params.NextCheck)
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { svc.NextCheck = next })
		r.bus.Publish(events.Event{Kind: events.NextCheckChanged, ObjectKey: params.Service, Value: next, Authority: sender})

	case cluster.MethodSetForceNextCheck:
		var params cluster.SetForceParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { svc.ForceNextCheck = params.Forced })
		r.bus.Publish(events.Event{Kind: events.ForceNextCheckChanged, ObjectKey: params.Service, Value: params.Forced, Authority: sender})

	case cluster.MethodSetForceNextNotification:
		var params cluster.SetForceParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { svc.ForceNextNotification = params.Forced })
		r.bus.Publish(events.Event{Kind: events.ForceNextNotificationChanged, ObjectKey: params.Service, Value: params.Forced, Authority: sender})

	case cluster.MethodSetEnableActiveChecks:
		r.applyEnable(sender, msg, events.EnableActiveChecksChanged, func(svc *types.Service, v bool) { svc.EnableActiveChecks = v })
	case cluster.MethodSetEnablePassiveChecks:
		r.applyEnable(sender, msg, events.EnablePassiveChecksChanged, func(svc *types.Service, v bool) { svc.EnablePassiveChecks = v })
	case cluster.MethodSetEnableNotifications:
		r.applyEnable(sender, msg, events.EnableNotificationsChanged, func(svc *types.Service, v bool) { svc.EnableNotifications = v })
	case cluster.MethodSetEnableFlapping:
		r.applyEnable(sender, msg, events.EnableFlappingChanged, func(svc *types.Service, v bool) { svc.EnableFlapping = v })

	case cluster.MethodAddComment:
		var params cluster.CommentParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		var comment types.Comment
		if err := json.Unmarshal(params.Comment, &comment); err != nil {
			logger.Warn().Err(err).Msg("dropping AddComment with unparseable payload")
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) {
			if svc.Comments == nil {
				svc.Comments = make(map[string]*types.Comment)
			}
			svc.Comments[comment.ID] = &comment
		})
		r.bus.Publish(events.Event{Kind: events.CommentAdded, ObjectKey: params.Service, Value: &comment, Authority: sender})

	case cluster.MethodRemoveComment:
		var params cluster.CommentParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { delete(svc.Comments, params.ID) })
		r.bus.Publish(events.Event{Kind: events.CommentRemoved, ObjectKey: params.Service, Value: params.ID, Authority: sender})

	case cluster.MethodAddDowntime:
		var params cluster.DowntimeParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		var downtime types.Downtime
		if err := json.Unmarshal(params.Downtime, &downtime); err != nil {
			logger.Warn().Err(err).Msg("dropping AddDowntime with unparseable payload")
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) {
			if svc.Downtimes == nil {
				svc.Downtimes = make(map[string]*types.Downtime)
			}
			svc.Downtimes[downtime.ID] = &downtime
		})
		r.bus.Publish(events.Event{Kind: events.DowntimeAdded, ObjectKey: params.Service, Value: &downtime, Authority: sender})

	case cluster.MethodRemoveDowntime:
		var params cluster.DowntimeParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { delete(svc.Downtimes, params.ID) })
		r.bus.Publish(events.Event{Kind: events.DowntimeRemoved, ObjectKey: params.Service, Value: params.ID, Authority: sender})

	case cluster.MethodSetAcknowledgement:
		var params cluster.AcknowledgementParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		ack := &types.Acknowledgement{
			Author:     params.Author,
			Text:       params.Comment,
			Type:       types.AcknowledgementType(params.Type),
			Expires:    params.Expiry > 0,
			ExpireTime: unixSeconds(params.Expiry),
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { svc.Acknowledgement = ack })
		r.bus.Publish(events.Event{Kind: events.AcknowledgementSet, ObjectKey: params.Service, Value: ack, Authority: sender})

	case cluster.MethodClearAcknowledgement:
		var params cluster.ClearAcknowledgementParams
		if !r.decodeAuthorized(sender, msg, &params) {
			return
		}
		_ = r.registry.WithService(params.Service, func(svc *types.Service) { svc.Acknowledgement = nil })
		r.bus.Publish(events.Event{Kind: events.AcknowledgementCleared, ObjectKey: params.Service, Authority: sender})

	case cluster.MethodSetLogPosition:
		var params cluster.SetLogPositionParams
		if err := msg.DecodeParams(&params); err != nil {
			logger.Warn().Err(err).Msg("dropping unparseable SetLogPosition")
			return
		}
		_ = r.registry.WithEndpoint(sender, func(ep *types.Endpoint) { ep.LocalLogPosition = params.LogPosition })

	case cluster.MethodConfig:
		logger.Info().Str("sender", sender).Msg("config distribution is not implemented, ignoring Config message")

	default:
		logger.Warn().Str("method", string(msg.Method)).Msg("ignoring unknown cluster method")
	}
}

func (r *Router) applyCheckResult(sender string, msg cluster.Message) {
	logger := log.WithComponent("router")

	var params cluster.CheckResultParams
	if err := msg.DecodeParams(&params); err != nil {
		logger.Warn().Err(err).Msg("dropping unparseable CheckResult")
		return
	}
	if !r.isSenderAuthoritative(params.Service, sender) {
		metrics.RejectedUnauthoritativeTotal.Inc()
		return
	}

	var result types.CheckResult
	if err := json.Unmarshal(params.CheckResult, &result); err != nil {
		logger.Warn().Err(err).Msg("dropping CheckResult with unparseable payload")
		return
	}

	var hardChanged bool
	err := r.registry.WithService(params.Service, func(svc *types.Service) {
		hardChanged = statemachine.Apply(svc, result).HardChanged
	})
	if err != nil {
		logger.Warn().Str("service", params.Service).Msg("CheckResult for unknown service")
		return
	}

	if hardChanged {
		metrics.HardStateChangesTotal.WithLabelValues(result.State.String()).Inc()
	}
	r.bus.Publish(events.Event{Kind: events.NewCheckResult, ObjectKey: params.Service, Value: result, Authority: sender})
}

func (r *Router) applyEnable(sender string, msg cluster.Message, kind events.EventKind, set func(*types.Service, bool)) {
	var params cluster.SetEnableParams
	if !r.decodeAuthorized(sender, msg, &params) {
		return
	}
	_ = r.registry.WithService(params.Service, func(svc *types.Service) { set(svc, params.Enabled) })
	r.bus.Publish(events.Event{Kind: kind, ObjectKey: params.Service, Value: params.Enabled, Authority: sender})
}

// decodeAuthorized decodes msg's params into v and checks that sender is
// the authoritative endpoint for the service named in v's Service field.
func (r *Router) decodeAuthorized(sender string, msg cluster.Message, v any) bool {
	if err := msg.DecodeParams(v); err != nil {
		log.WithComponent("router").Warn().Err(err).Str("method", string(msg.Method)).Msg("dropping unparseable message")
		return false
	}
	key := serviceKeyFromParams(v)
	if key == "" {
		return false
	}
	if !r.isSenderAuthoritative(key, sender) {
		metrics.RejectedUnauthoritativeTotal.Inc()
		return false
	}
	return true
}

func serviceKeyFromParams(v any) string {
	switch p := v.(type) {
	case *cluster.SetNextCheckParams:
		return p.Service
	case *cluster.SetForceParams:
		return p.Service
	case *cluster.SetEnableParams:
		return p.Service
	case *cluster.CommentParams:
		return p.Service
	case *cluster.DowntimeParams:
		return p.Service
	case *cluster.AcknowledgementParams:
		return p.Service
	case *cluster.ClearAcknowledgementParams:
		return p.Service
	default:
		return ""
	}
}

func (r *Router) isSenderAuthoritative(serviceKey, sender string) bool {
	var authoritative bool
	err := r.registry.WithServiceRead(serviceKey, func(svc *types.Service) {
		authoritative = r.resolveAuthority(svc) == sender
	})
	return err == nil && authoritative
}

func unixSeconds(ts float64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ts*1e9))
}
