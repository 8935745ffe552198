package metrics

import (
	"time"
)

// Registry is the subset of pkg/registry's API the collector needs. It is
// an interface so pkg/metrics does not import pkg/registry directly,
// avoiding a cycle with packages that import both.
type Registry interface {
	ServiceCount() int
	HostCount() int
	ServiceStateCounts() map[string]int
	EndpointConnectedStates() map[string]bool
}

// ReplayLogSizer reports on-disk replay log size per peer, satisfied by
// pkg/cluster/replay.Log.
type ReplayLogSizer interface {
	SizeBytes() (map[string]int64, error)
}

// Collector polls the registry and replay logs on a timer and updates the
// sentryd_* gauges in metrics.go. Counters (checks executed, relayed
// messages, ...) are updated inline by their owning packages instead.
type Collector struct {
	registry Registry
	replay   ReplayLogSizer
	stopCh   chan struct{}
}

// NewCollector creates a collector over the given registry. replay may be
// nil if no replay log is wired (e.g. a standalone, non-clustered run).
func NewCollector(reg Registry, replay ReplayLogSizer) *Collector {
	return &Collector{
		registry: reg,
		replay:   replay,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectHostMetrics()
	c.collectServiceMetrics()
	c.collectEndpointMetrics()
	c.collectReplayLogMetrics()
}

func (c *Collector) collectHostMetrics() {
	HostsTotal.Set(float64(c.registry.HostCount()))
}

func (c *Collector) collectServiceMetrics() {
	counts := c.registry.ServiceStateCounts()
	for _, state := range []string{"OK", "Warning", "Critical", "Unknown"} {
		ServicesTotal.WithLabelValues(state).Set(float64(counts[state]))
	}
}

func (c *Collector) collectEndpointMetrics() {
	states := c.registry.EndpointConnectedStates()
	connected := 0
	for name, up := range states {
		if up {
			EndpointConnected.WithLabelValues(name).Set(1)
			connected++
		} else {
			EndpointConnected.WithLabelValues(name).Set(0)
		}
	}
	EndpointsConnected.Set(float64(connected))
}

func (c *Collector) collectReplayLogMetrics() {
	if c.replay == nil {
		return
	}
	sizes, err := c.replay.SizeBytes()
	if err != nil {
		return
	}
	for peer, bytes := range sizes {
		ReplayLogBytes.WithLabelValues(peer).Set(float64(bytes))
	}
}
