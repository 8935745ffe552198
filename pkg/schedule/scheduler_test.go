package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/types"
)

// fakeRegistry is an in-memory stand-in for *registry.Registry, sufficient
// to exercise the scheduler without pulling in the real registry package.
type fakeRegistry struct {
	mu       sync.Mutex
	services map[string]*types.Service
}

func newFakeRegistry(svcs ...*types.Service) *fakeRegistry {
	r := &fakeRegistry{services: make(map[string]*types.Service)}
	for _, svc := range svcs {
		r.services[svc.Key()] = svc
	}
	return r
}

func (r *fakeRegistry) WithService(key string, fn func(svc *types.Service)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[key]
	if !ok {
		return assert.AnError
	}
	fn(svc)
	return nil
}

func (r *fakeRegistry) WithServiceRead(key string, fn func(svc *types.Service)) error {
	return r.WithService(key, fn)
}

// fakeDispatcher returns a fixed result for every Run call and counts
// invocations.
type fakeDispatcher struct {
	mu     sync.Mutex
	result types.CheckResult
	calls  int
}

func (d *fakeDispatcher) Run(_ context.Context, _ []string, _ []string, _ []byte, _ time.Duration) types.CheckResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.result
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type denyAuthority struct{}

func (denyAuthority) IsAuthoritative(*types.Service) bool { return false }

func testConfig() Config {
	return Config{
		MaxConcurrentChecks: 4,
		PluginTimeout:       time.Second,
		TickInterval:        20 * time.Millisecond,
	}
}

func TestSchedulerDispatchesDueService(t *testing.T) {
	svc := &types.Service{HostName: "h", Name: "disk", CheckCommand: []string{"true"}, CheckInterval: time.Hour, EnableActiveChecks: true}
	reg := newFakeRegistry(svc)
	disp := &fakeDispatcher{result: types.CheckResult{State: types.StateOK, ExecutionEnd: time.Now()}}
	bus := events.New()

	sched := New(reg, AlwaysAuthoritative{}, disp, bus, testConfig())
	sched.Enqueue(svc.Key(), time.Now(), svc.CheckInterval)
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool { return disp.callCount() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsNonAuthoritativeService(t *testing.T) {
	svc := &types.Service{HostName: "h", Name: "disk", CheckCommand: []string{"true"}, CheckInterval: time.Hour, EnableActiveChecks: true}
	reg := newFakeRegistry(svc)
	disp := &fakeDispatcher{result: types.CheckResult{State: types.StateOK, ExecutionEnd: time.Now()}}
	bus := events.New()

	sched := New(reg, denyAuthority{}, disp, bus, testConfig())
	sched.Enqueue(svc.Key(), time.Now(), svc.CheckInterval)
	sched.Start()
	defer sched.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, disp.callCount())
}

func TestSchedulerSkipsDisabledActiveChecks(t *testing.T) {
	svc := &types.Service{HostName: "h", Name: "disk", CheckCommand: []string{"true"}, CheckInterval: time.Hour, EnableActiveChecks: false}
	reg := newFakeRegistry(svc)
	disp := &fakeDispatcher{result: types.CheckResult{State: types.StateOK, ExecutionEnd: time.Now()}}
	bus := events.New()

	sched := New(reg, AlwaysAuthoritative{}, disp, bus, testConfig())
	sched.Enqueue(svc.Key(), time.Now(), svc.CheckInterval)
	sched.Start()
	defer sched.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, disp.callCount())
}

func TestSchedulerAppliesStateMachineAndPublishesEvent(t *testing.T) {
	svc := &types.Service{
		HostName: "h", Name: "disk", CheckCommand: []string{"true"},
		CheckInterval: time.Hour, RetryInterval: time.Minute,
		MaxCheckAttempts: 3, EnableActiveChecks: true,
		State: types.StateOK, StateType: types.StateTypeHard, CurrentAttempt: 1,
	}
	reg := newFakeRegistry(svc)
	disp := &fakeDispatcher{result: types.CheckResult{State: types.StateCritical, ExecutionEnd: time.Now()}}
	bus := events.New()

	received := make(chan events.Event, 4)
	bus.Subscribe(func(ev events.Event) { received <- ev }, events.NewCheckResult)

	sched := New(reg, AlwaysAuthoritative{}, disp, bus, testConfig())
	sched.Enqueue(svc.Key(), time.Now(), svc.CheckInterval)
	sched.Start()
	defer sched.Stop()

	select {
	case ev := <-received:
		assert.Equal(t, events.NewCheckResult, ev.Kind)
		assert.Equal(t, svc.Key(), ev.ObjectKey)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NewCheckResult event")
	}

	assert.Equal(t, types.StateTypeSoft, svc.StateType)
	assert.Equal(t, 2, svc.CurrentAttempt)
}

func TestSchedulerRequeuesUsingRetryIntervalWhileSoft(t *testing.T) {
	svc := &types.Service{
		HostName: "h", Name: "disk", CheckCommand: []string{"true"},
		CheckInterval: time.Hour, RetryInterval: 50 * time.Millisecond,
		MaxCheckAttempts: 5, EnableActiveChecks: true,
		State: types.StateOK, StateType: types.StateTypeHard, CurrentAttempt: 1,
	}
	reg := newFakeRegistry(svc)
	disp := &fakeDispatcher{result: types.CheckResult{State: types.StateCritical, ExecutionEnd: time.Now()}}
	bus := events.New()

	sched := New(reg, AlwaysAuthoritative{}, disp, bus, testConfig())
	sched.Enqueue(svc.Key(), time.Now(), svc.CheckInterval)
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool { return disp.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestDueQueueOrdersByNextCheckThenKey(t *testing.T) {
	now := time.Now()
	reg := newFakeRegistry()
	disp := &fakeDispatcher{}
	bus := events.New()

	sched := New(reg, AlwaysAuthoritative{}, disp, bus, testConfig())
	sched.Enqueue("h!b", now, time.Hour)
	sched.Enqueue("h!a", now, time.Hour)
	sched.Enqueue("h!c", now.Add(time.Minute), time.Hour)

	sched.mu.Lock()
	first := sched.queue[0].key
	sched.mu.Unlock()
	assert.Equal(t, "h!a", first)
}
