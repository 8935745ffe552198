package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/types"
)

func TestRegisterServiceDuplicateFails(t *testing.T) {
	r := New()
	svc := &types.Service{HostName: "db-01", Name: "postgres"}
	require.NoError(t, r.RegisterService(svc))

	err := r.RegisterService(&types.Service{HostName: "db-01", Name: "postgres"})
	assert.Error(t, err)
}

func TestWithServiceMutatesUnderLock(t *testing.T) {
	r := New()
	svc := &types.Service{HostName: "db-01", Name: "postgres", State: types.StateOK}
	require.NoError(t, r.RegisterService(svc))

	err := r.WithService(svc.Key(), func(s *types.Service) {
		s.State = types.StateCritical
	})
	require.NoError(t, err)

	var observed types.ServiceState
	require.NoError(t, r.WithServiceRead(svc.Key(), func(s *types.Service) {
		observed = s.State
	}))
	assert.Equal(t, types.StateCritical, observed)
}

func TestWithServiceMissingKey(t *testing.T) {
	r := New()
	err := r.WithService("nohost!noservice", func(s *types.Service) {})
	assert.Error(t, err)
}

func TestNotifyFansOutToSubscribers(t *testing.T) {
	r := New()
	var mu sync.Mutex
	var got []Signal
	r.Subscribe(func(sig Signal) {
		mu.Lock()
		got = append(got, sig)
		mu.Unlock()
	})

	r.Notify(TypeService, "db-01!postgres", "state", "")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "state", got[0].Attribute)
	assert.Empty(t, got[0].Authority)
}

func TestIterateServiceKeysSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterService(&types.Service{HostName: "b", Name: "svc"}))
	require.NoError(t, r.RegisterService(&types.Service{HostName: "a", Name: "svc"}))

	keys := r.IterateServiceKeys()
	require.Len(t, keys, 2)
	assert.Equal(t, "a!svc", keys[0])
	assert.Equal(t, "b!svc", keys[1])
}

func TestServiceStateCounts(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterService(&types.Service{HostName: "a", Name: "svc", State: types.StateOK}))
	require.NoError(t, r.RegisterService(&types.Service{HostName: "b", Name: "svc", State: types.StateCritical}))

	counts := r.ServiceStateCounts()
	assert.Equal(t, 1, counts["OK"])
	assert.Equal(t, 1, counts["Critical"])
}

func TestWithHostReadReturnsRegisteredHost(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterHost(&types.Host{Name: "db-01", CheckServices: []string{"ping"}}))

	var observed []string
	require.NoError(t, r.WithHostRead("db-01", func(h *types.Host) {
		observed = h.CheckServices
	}))
	assert.Equal(t, []string{"ping"}, observed)

	assert.Error(t, r.WithHostRead("missing", func(h *types.Host) {}))
}

func TestEndpointConnectedStates(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterEndpoint(&types.Endpoint{Name: "ep-a", Connected: true}))
	require.NoError(t, r.RegisterEndpoint(&types.Endpoint{Name: "ep-b", Connected: false}))

	states := r.EndpointConnectedStates()
	assert.True(t, states["ep-a"])
	assert.False(t, states["ep-b"])
}
