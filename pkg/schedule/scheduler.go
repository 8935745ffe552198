// Package schedule maintains each service's next-check time and dispatches
// due checks to the process runner with bounded concurrency.
package schedule

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/wardenhq/sentryd/pkg/events"
	"github.com/wardenhq/sentryd/pkg/log"
	"github.com/wardenhq/sentryd/pkg/metrics"
	"github.com/wardenhq/sentryd/pkg/statemachine"
	"github.com/wardenhq/sentryd/pkg/types"
)

// Registry is the subset of *registry.Registry the scheduler needs: locked
// read/write access to a service by key. Defined locally so this package
// never imports pkg/registry directly.
type Registry interface {
	WithService(key string, fn func(svc *types.Service)) error
	WithServiceRead(key string, fn func(svc *types.Service)) error
}

// Authority decides whether the local endpoint is the one that should
// actually execute checks for a given service (the cluster router's
// authority rule). A scheduler running standalone (no cluster router
// wired in) can use AlwaysAuthoritative.
type Authority interface {
	IsAuthoritative(svc *types.Service) bool
}

// AlwaysAuthoritative treats every service as locally authoritative. It is
// the default when no cluster router is wired in.
type AlwaysAuthoritative struct{}

// IsAuthoritative always returns true.
func (AlwaysAuthoritative) IsAuthoritative(*types.Service) bool { return true }

// Dispatcher runs one plugin invocation to completion. *runner.Runner
// satisfies this directly.
type Dispatcher interface {
	Run(ctx context.Context, argv []string, env []string, stdinBytes []byte, timeout time.Duration) types.CheckResult
}

// Scheduler maintains a next_check-ordered min-heap of services and feeds
// due ones to the Dispatcher as worker slots free up.
type Scheduler struct {
	registry   Registry
	authority  Authority
	dispatcher Dispatcher
	bus        *events.Bus
	sem        *semaphore.Weighted

	pluginTimeout time.Duration
	tickInterval  time.Duration

	mu     sync.Mutex
	queue  dueQueue
	stopCh chan struct{}
}

// Config carries the Scheduler's tunables.
type Config struct {
	// MaxConcurrentChecks bounds how many checks this scheduler will have
	// in flight at once; must match the Dispatcher's own concurrency
	// limit so the scheduler pauses instead of piling up goroutines
	// behind an already-saturated runner.
	MaxConcurrentChecks int64
	// PluginTimeout is the default per-check timeout (spec default 60s).
	PluginTimeout time.Duration
	// TickInterval is how often the heap is checked for due services.
	TickInterval time.Duration
}

// DefaultConfig returns the engine's baseline scheduling parameters.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentChecks: 16,
		PluginTimeout:       60 * time.Second,
		TickInterval:        time.Second,
	}
}

// New creates a Scheduler. bus receives NewCheckResult and
// NextCheckChanged events published as checks complete.
func New(registry Registry, authority Authority, dispatcher Dispatcher, bus *events.Bus, cfg Config) *Scheduler {
	return &Scheduler{
		registry:      registry,
		authority:     authority,
		dispatcher:    dispatcher,
		bus:           bus,
		sem:           semaphore.NewWeighted(cfg.MaxConcurrentChecks),
		pluginTimeout: cfg.PluginTimeout,
		tickInterval:  cfg.TickInterval,
		stopCh:        make(chan struct{}),
	}
}

// Enqueue adds a service to the due-queue. Callers enqueue once when a
// service is first registered; every subsequent enqueue happens
// automatically as completed checks recompute next_check. checkInterval
// is used to randomize the first next_check (spec: "spread load across
// restarts") when the service has never been scheduled (NextCheck zero).
func (s *Scheduler) Enqueue(key string, nextCheck time.Time, checkInterval time.Duration) {
	if nextCheck.IsZero() {
		jitter := time.Duration(0)
		if checkInterval > 0 {
			jitter = time.Duration(rand.Int63n(int64(checkInterval)))
		}
		nextCheck = time.Now().Add(jitter)
	}

	s.mu.Lock()
	heap.Push(&s.queue, &dueItem{key: key, nextCheck: nextCheck})
	s.mu.Unlock()
}

// Start begins the scheduler's tick loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop halts the tick loop. In-flight checks are allowed to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	logger := log.WithComponent("scheduler")

	for {
		select {
		case <-ticker.C:
			s.dispatchDue(logger)
		case <-s.stopCh:
			return
		}
	}
}

// dispatchDue pops every service whose next_check has arrived and hands it
// to the dispatcher, stopping as soon as the concurrency bound is reached —
// pausing rather than piling up goroutines waiting on an already-saturated
// runner pool.
func (s *Scheduler) dispatchDue(logger zerolog.Logger) {
	now := time.Now()

	for {
		item := s.popDue(now)
		if item == nil {
			return
		}

		if !s.sem.TryAcquire(1) {
			// Runner is saturated: put the item back for the next tick
			// instead of blocking this loop.
			s.mu.Lock()
			heap.Push(&s.queue, item)
			s.mu.Unlock()
			return
		}

		metrics.SchedulingLatency.Observe(now.Sub(item.nextCheck).Seconds())
		go s.runOne(item.key, logger)
	}
}

// popDue removes and returns the earliest-due item if it is due by now,
// or nil if the heap is empty or its head isn't due yet.
func (s *Scheduler) popDue(now time.Time) *dueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}
	if s.queue[0].nextCheck.After(now) {
		return nil
	}
	return heap.Pop(&s.queue).(*dueItem)
}

// runOne executes one service's check end to end: authority check,
// dispatch, state-machine application, re-enqueue.
func (s *Scheduler) runOne(key string, logger zerolog.Logger) {
	defer s.sem.Release(1)

	var (
		argv          []string
		authoritative bool
		checkInterval time.Duration
		retryInterval time.Duration
		stateType     types.StateType
		skip          bool
	)

	err := s.registry.WithServiceRead(key, func(svc *types.Service) {
		if !svc.EnableActiveChecks {
			skip = true
			return
		}
		authoritative = s.authority.IsAuthoritative(svc)
		argv = append([]string(nil), svc.CheckCommand...)
		checkInterval = svc.CheckInterval
		retryInterval = svc.RetryInterval
		stateType = svc.StateType
	})
	if err != nil {
		logger.Warn().Str("key", key).Err(err).Msg("service vanished before its check could run")
		return
	}
	if skip {
		s.Enqueue(key, time.Now().Add(checkInterval), checkInterval)
		return
	}
	if !authoritative {
		s.requeueAfterInterval(key, stateType, checkInterval, retryInterval)
		return
	}

	timer := metrics.NewTimer()
	result := s.dispatcher.Run(context.Background(), argv, nil, nil, s.pluginTimeout)
	timer.ObserveDuration(metrics.CheckExecutionDuration)

	metrics.ChecksExecutedTotal.WithLabelValues(exitStatusLabel(result.ExitStatus)).Inc()
	if result.ExitStatus == spawnFailureStatus {
		metrics.ChecksFailedToSpawn.Inc()
	}

	s.applyResult(key, result, logger)
}

// applyResult runs the state machine over the result under the registry's
// per-object lock, publishes the resulting event, and re-enqueues the service.
func (s *Scheduler) applyResult(key string, result types.CheckResult, logger zerolog.Logger) {
	var (
		checkInterval time.Duration
		retryInterval time.Duration
		stateType     types.StateType
	)

	err := s.registry.WithService(key, func(svc *types.Service) {
		transition := statemachine.Apply(svc, result)
		checkInterval = svc.CheckInterval
		retryInterval = svc.RetryInterval
		stateType = svc.StateType

		if transition.HardChanged {
			metrics.HardStateChangesTotal.WithLabelValues(svc.State.String()).Inc()
		}

		s.bus.Publish(events.Event{
			Kind:      events.NewCheckResult,
			ObjectKey: key,
			Value:     result,
		})
	})
	if err != nil {
		logger.Warn().Str("key", key).Err(err).Msg("service vanished before its result could be applied")
		return
	}

	s.requeueAfterInterval(key, stateType, checkInterval, retryInterval)
}

// requeueAfterInterval recomputes next_check per spec: now + retry_interval
// while Soft, now + check_interval while Hard.
func (s *Scheduler) requeueAfterInterval(key string, stateType types.StateType, checkInterval, retryInterval time.Duration) {
	interval := checkInterval
	if stateType == types.StateTypeSoft && retryInterval > 0 {
		interval = retryInterval
	}

	next := time.Now().Add(interval)
	s.mu.Lock()
	heap.Push(&s.queue, &dueItem{key: key, nextCheck: next})
	s.mu.Unlock()

	s.bus.Publish(events.Event{Kind: events.NextCheckChanged, ObjectKey: key, Value: next})
}

const spawnFailureStatus = 128

func exitStatusLabel(status int) string {
	switch status {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	case spawnFailureStatus:
		return "128"
	default:
		return "other"
	}
}
