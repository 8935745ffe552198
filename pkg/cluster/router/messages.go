package router

import (
	"encoding/json"
	"time"

	"github.com/wardenhq/sentryd/pkg/cluster"
	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/types"
)

// buildMessage maps a published event to its wire form, one message
// method per event kind. ok is false for event kinds that never cross
// the wire (MessageReceived) or whose Value doesn't match the kind's
// expected shape.
func buildMessage(ev events.Event) (cluster.Message, bool) {
	switch ev.Kind {
	case events.NewCheckResult:
		result, ok := ev.Value.(types.CheckResult)
		if !ok {
			return cluster.Message{}, false
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodCheckResult, cluster.CheckResultParams{
			Service:     ev.ObjectKey,
			CheckResult: raw,
		})

	case events.NextCheckChanged:
		next, ok := ev.Value.(time.Time)
		if !ok {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodSetNextCheck, cluster.SetNextCheckParams{
			Service:   ev.ObjectKey,
			NextCheck: secondsSinceEpoch(next),
		})

	case events.NextNotificationChanged:
		next, ok := ev.Value.(time.Time)
		if !ok {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodSetNextNotification, cluster.SetNextNotificationParams{
			Notification:     ev.ObjectKey,
			NextNotification: secondsSinceEpoch(next),
		})

	case events.ForceNextCheckChanged:
		return forceMessage(cluster.MethodSetForceNextCheck, ev)

	case events.ForceNextNotificationChanged:
		return forceMessage(cluster.MethodSetForceNextNotification, ev)

	case events.EnableActiveChecksChanged:
		return enableMessage(cluster.MethodSetEnableActiveChecks, ev)
	case events.EnablePassiveChecksChanged:
		return enableMessage(cluster.MethodSetEnablePassiveChecks, ev)
	case events.EnableNotificationsChanged:
		return enableMessage(cluster.MethodSetEnableNotifications, ev)
	case events.EnableFlappingChanged:
		return enableMessage(cluster.MethodSetEnableFlapping, ev)

	case events.CommentAdded:
		comment, ok := ev.Value.(*types.Comment)
		if !ok {
			return cluster.Message{}, false
		}
		raw, err := json.Marshal(comment)
		if err != nil {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodAddComment, cluster.CommentParams{Service: ev.ObjectKey, Comment: raw})

	case events.CommentRemoved:
		id, ok := ev.Value.(string)
		if !ok {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodRemoveComment, cluster.CommentParams{Service: ev.ObjectKey, ID: id})

	case events.DowntimeAdded:
		downtime, ok := ev.Value.(*types.Downtime)
		if !ok {
			return cluster.Message{}, false
		}
		raw, err := json.Marshal(downtime)
		if err != nil {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodAddDowntime, cluster.DowntimeParams{Service: ev.ObjectKey, Downtime: raw})

	case events.DowntimeRemoved:
		id, ok := ev.Value.(string)
		if !ok {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodRemoveDowntime, cluster.DowntimeParams{Service: ev.ObjectKey, ID: id})

	case events.AcknowledgementSet:
		ack, ok := ev.Value.(*types.Acknowledgement)
		if !ok {
			return cluster.Message{}, false
		}
		return newMessage(cluster.MethodSetAcknowledgement, cluster.AcknowledgementParams{
			Service: ev.ObjectKey,
			Author:  ack.Author,
			Comment: ack.Text,
			Type:    int(ack.Type),
			Expiry:  secondsSinceEpoch(ack.ExpireTime),
		})

	case events.AcknowledgementCleared:
		return newMessage(cluster.MethodClearAcknowledgement, cluster.ClearAcknowledgementParams{Service: ev.ObjectKey})

	default:
		return cluster.Message{}, false
	}
}

func forceMessage(method cluster.Method, ev events.Event) (cluster.Message, bool) {
	forced, ok := ev.Value.(bool)
	if !ok {
		return cluster.Message{}, false
	}
	return newMessage(method, cluster.SetForceParams{Service: ev.ObjectKey, Forced: forced})
}

func enableMessage(method cluster.Method, ev events.Event) (cluster.Message, bool) {
	enabled, ok := ev.Value.(bool)
	if !ok {
		return cluster.Message{}, false
	}
	return newMessage(method, cluster.SetEnableParams{Service: ev.ObjectKey, Enabled: enabled})
}

func newMessage(method cluster.Method, params any) (cluster.Message, bool) {
	msg, err := cluster.NewMessage(method, params)
	if err != nil {
		return cluster.Message{}, false
	}
	return msg, true
}
