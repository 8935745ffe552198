package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/types"
)

type fakeRegistry struct {
	services map[string]*types.Service
}

func newFakeRegistry(key string) *fakeRegistry {
	return &fakeRegistry{services: map[string]*types.Service{
		key: {HostName: "host", Name: "svc"},
	}}
}

func (f *fakeRegistry) WithService(key string, fn func(svc *types.Service)) error {
	svc, ok := f.services[key]
	if !ok {
		return errNotFound{}
	}
	fn(svc)
	return nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func TestAddCommentPublishesAndAssignsID(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()
	var got events.Event
	bus.Subscribe(func(ev events.Event) { got = ev }, events.CommentAdded)

	id, err := AddComment(reg, bus, "host!svc", "alice", "investigating", false, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, events.CommentAdded, got.Kind)
	require.Contains(t, reg.services["host!svc"].Comments, id)
}

func TestRemoveCommentDeletesByID(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()

	id, err := AddComment(reg, bus, "host!svc", "alice", "investigating", false, time.Time{})
	require.NoError(t, err)

	require.NoError(t, RemoveComment(reg, bus, "host!svc", id))
	require.NotContains(t, reg.services["host!svc"].Comments, id)
}

func TestAddDowntimeAssignsID(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()

	id, err := AddDowntime(reg, bus, "host!svc", AddDowntimeParams{
		Author:    "alice",
		Comment:   "maintenance window",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		Fixed:     true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Contains(t, reg.services["host!svc"].Downtimes, id)
}

func TestSetAndClearAcknowledgement(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()

	require.NoError(t, SetAcknowledgement(reg, bus, "host!svc", "alice", "known issue", types.AckNormal, false, time.Time{}))
	require.NotNil(t, reg.services["host!svc"].Acknowledgement)

	require.NoError(t, ClearAcknowledgement(reg, bus, "host!svc"))
	require.Nil(t, reg.services["host!svc"].Acknowledgement)
}

func TestSetEnableActiveChecksPublishesEvent(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()
	var kinds []events.EventKind
	bus.Subscribe(func(ev events.Event) { kinds = append(kinds, ev.Kind) })

	require.NoError(t, SetEnableActiveChecks(reg, bus, "host!svc", false))
	require.False(t, reg.services["host!svc"].EnableActiveChecks)
	require.Contains(t, kinds, events.EnableActiveChecksChanged)
}

func TestCommandsReturnErrorForUnknownService(t *testing.T) {
	reg := newFakeRegistry("host!svc")
	bus := events.New()

	_, err := AddComment(reg, bus, "host!missing", "alice", "x", false, time.Time{})
	require.Error(t, err)
}
