package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/types"
)

// Registry is the subset of *registry.Registry the command surface needs.
type Registry interface {
	WithService(key string, fn func(svc *types.Service)) error
}

// AddComment attaches a new comment to the named service and returns its
// generated ID. expireTime is ignored unless expires is true.
func AddComment(reg Registry, bus *events.Bus, serviceKey, author, text string, expires bool, expireTime time.Time) (string, error) {
	comment := &types.Comment{
		ID:         uuid.New().String(),
		Author:     author,
		Text:       text,
		EntryTime:  time.Now(),
		Expires:    expires,
		ExpireTime: expireTime,
	}

	err := reg.WithService(serviceKey, func(svc *types.Service) {
		if svc.Comments == nil {
			svc.Comments = make(map[string]*types.Comment)
		}
		svc.Comments[comment.ID] = comment
	})
	if err != nil {
		return "", fmt.Errorf("commands: add comment to %q: %w", serviceKey, err)
	}

	bus.Publish(events.Event{Kind: events.CommentAdded, ObjectKey: serviceKey, Value: comment})
	return comment.ID, nil
}

// RemoveComment deletes a comment by ID. Removing an ID that doesn't
// exist is a no-op, not an error — the comment may have already expired
// or been removed by a racing peer.
func RemoveComment(reg Registry, bus *events.Bus, serviceKey, id string) error {
	err := reg.WithService(serviceKey, func(svc *types.Service) { delete(svc.Comments, id) })
	if err != nil {
		return fmt.Errorf("commands: remove comment from %q: %w", serviceKey, err)
	}
	bus.Publish(events.Event{Kind: events.CommentRemoved, ObjectKey: serviceKey, Value: id})
	return nil
}

// AddDowntimeParams carries the fields a caller supplies for a new
// downtime; ID, TriggerTime and Triggers are computed/owned internally.
type AddDowntimeParams struct {
	Author      string
	Comment     string
	StartTime   time.Time
	EndTime     time.Time
	Fixed       bool
	Duration    time.Duration
	TriggeredBy string
}

// AddDowntime schedules a new downtime on the named service and returns
// its generated ID.
func AddDowntime(reg Registry, bus *events.Bus, serviceKey string, params AddDowntimeParams) (string, error) {
	downtime := &types.Downtime{
		ID:          uuid.New().String(),
		Author:      params.Author,
		Comment:     params.Comment,
		StartTime:   params.StartTime,
		EndTime:     params.EndTime,
		Fixed:       params.Fixed,
		Duration:    params.Duration,
		TriggeredBy: params.TriggeredBy,
	}

	err := reg.WithService(serviceKey, func(svc *types.Service) {
		if svc.Downtimes == nil {
			svc.Downtimes = make(map[string]*types.Downtime)
		}
		svc.Downtimes[downtime.ID] = downtime
	})
	if err != nil {
		return "", fmt.Errorf("commands: add downtime to %q: %w", serviceKey, err)
	}

	bus.Publish(events.Event{Kind: events.DowntimeAdded, ObjectKey: serviceKey, Value: downtime})
	return downtime.ID, nil
}

// RemoveDowntime deletes a downtime by ID.
func RemoveDowntime(reg Registry, bus *events.Bus, serviceKey, id string) error {
	err := reg.WithService(serviceKey, func(svc *types.Service) { delete(svc.Downtimes, id) })
	if err != nil {
		return fmt.Errorf("commands: remove downtime from %q: %w", serviceKey, err)
	}
	bus.Publish(events.Event{Kind: events.DowntimeRemoved, ObjectKey: serviceKey, Value: id})
	return nil
}

// SetAcknowledgement records that a human has accepted responsibility for
// the named service's current non-OK state.
func SetAcknowledgement(reg Registry, bus *events.Bus, serviceKey, author, text string, ackType types.AcknowledgementType, expires bool, expireTime time.Time) error {
	ack := &types.Acknowledgement{Author: author, Text: text, Type: ackType, Expires: expires, ExpireTime: expireTime}

	err := reg.WithService(serviceKey, func(svc *types.Service) { svc.Acknowledgement = ack })
	if err != nil {
		return fmt.Errorf("commands: set acknowledgement on %q: %w", serviceKey, err)
	}
	bus.Publish(events.Event{Kind: events.AcknowledgementSet, ObjectKey: serviceKey, Value: ack})
	return nil
}

// ClearAcknowledgement removes any acknowledgement on the named service.
func ClearAcknowledgement(reg Registry, bus *events.Bus, serviceKey string) error {
	err := reg.WithService(serviceKey, func(svc *types.Service) { svc.Acknowledgement = nil })
	if err != nil {
		return fmt.Errorf("commands: clear acknowledgement on %q: %w", serviceKey, err)
	}
	bus.Publish(events.Event{Kind: events.AcknowledgementCleared, ObjectKey: serviceKey})
	return nil
}

// enableField identifies which of a Service's enable flags a SetEnable*
// helper below targets, and the event kind that change fans out as.
type enableField struct {
	kind events.EventKind
	set  func(*types.Service, bool)
}

var (
	enableActiveChecks  = enableField{events.EnableActiveChecksChanged, func(s *types.Service, v bool) { s.EnableActiveChecks = v }}
	enablePassiveChecks = enableField{events.EnablePassiveChecksChanged, func(s *types.Service, v bool) { s.EnablePassiveChecks = v }}
	enableNotifications = enableField{events.EnableNotificationsChanged, func(s *types.Service, v bool) { s.EnableNotifications = v }}
	enableFlapping      = enableField{events.EnableFlappingChanged, func(s *types.Service, v bool) { s.EnableFlapping = v }}
)

func setEnable(reg Registry, bus *events.Bus, serviceKey string, field enableField, enabled bool) error {
	err := reg.WithService(serviceKey, func(svc *types.Service) { field.set(svc, enabled) })
	if err != nil {
		return fmt.Errorf("commands: set enable flag on %q: %w", serviceKey, err)
	}
	bus.Publish(events.Event{Kind: field.kind, ObjectKey: serviceKey, Value: enabled})
	return nil
}

// SetEnableActiveChecks toggles whether the scheduler dispatches active
// checks for the named service.
func SetEnableActiveChecks(reg Registry, bus *events.Bus, serviceKey string, enabled bool) error {
	return setEnable(reg, bus, serviceKey, enableActiveChecks, enabled)
}

// SetEnablePassiveChecks toggles whether passive (externally submitted)
// check results are accepted for the named service.
func SetEnablePassiveChecks(reg Registry, bus *events.Bus, serviceKey string, enabled bool) error {
	return setEnable(reg, bus, serviceKey, enablePassiveChecks, enabled)
}

// SetEnableNotifications toggles notifications for the named service.
func SetEnableNotifications(reg Registry, bus *events.Bus, serviceKey string, enabled bool) error {
	return setEnable(reg, bus, serviceKey, enableNotifications, enabled)
}

// SetEnableFlapping toggles flap detection for the named service.
func SetEnableFlapping(reg Registry, bus *events.Bus, serviceKey string, enabled bool) error {
	return setEnable(reg, bus, serviceKey, enableFlapping, enabled)
}
