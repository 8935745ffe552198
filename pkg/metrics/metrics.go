package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Checkable metrics
	ServicesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentryd_services_total",
			Help: "Total number of services by current state",
		},
		[]string{"state"},
	)

	HostsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentryd_hosts_total",
			Help: "Total number of hosts",
		},
	)

	// Check execution metrics
	ChecksExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_checks_executed_total",
			Help: "Total number of check plugin invocations by exit status",
		},
		[]string{"exit_status"},
	)

	ChecksFailedToSpawn = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryd_checks_failed_to_spawn_total",
			Help: "Total number of checks that could not be spawned at all",
		},
	)

	CheckExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryd_check_execution_duration_seconds",
			Help:    "Time taken to execute a check plugin in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryd_scheduling_latency_seconds",
			Help:    "Time between a service's due next_check and its dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	HardStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_hard_state_changes_total",
			Help: "Total number of hard state changes by resulting state",
		},
		[]string{"state"},
	)

	// Cluster metrics
	EndpointsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentryd_endpoints_connected",
			Help: "Number of currently connected cluster endpoints",
		},
	)

	EndpointConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentryd_endpoint_connected",
			Help: "Whether a given endpoint is connected (1) or not (0)",
		},
		[]string{"endpoint"},
	)

	RelayedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_relayed_messages_total",
			Help: "Total number of messages relayed to peers by method",
		},
		[]string{"method"},
	)

	DroppedStaleMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryd_dropped_stale_messages_total",
			Help: "Total number of inbound messages dropped as stale (ts <= remote_log_position)",
		},
	)

	RejectedUnauthoritativeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentryd_rejected_unauthoritative_total",
			Help: "Total number of inbound messages rejected because the sender was not authoritative",
		},
	)

	ReplayLogBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentryd_replay_log_bytes",
			Help: "On-disk size of a peer's replay log directory in bytes",
		},
		[]string{"peer"},
	)

	ReplayLogRecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_replay_log_records_written_total",
			Help: "Total number of replay-log records written per peer",
		},
		[]string{"peer"},
	)

	RelayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentryd_relay_latency_seconds",
			Help:    "Time from a local event being published to being enqueued on a peer's write loop",
			Buckets: prometheus.DefBuckets,
		},
	)

	SendQueueTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentryd_send_queue_timeouts_total",
			Help: "Total number of outbound messages dropped because a peer's write queue stayed full past the send timeout",
		},
		[]string{"peer"},
	)
)

func init() {
	prometheus.MustRegister(ServicesTotal)
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(ChecksExecutedTotal)
	prometheus.MustRegister(ChecksFailedToSpawn)
	prometheus.MustRegister(CheckExecutionDuration)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(HardStateChangesTotal)
	prometheus.MustRegister(EndpointsConnected)
	prometheus.MustRegister(EndpointConnected)
	prometheus.MustRegister(RelayedMessagesTotal)
	prometheus.MustRegister(DroppedStaleMessagesTotal)
	prometheus.MustRegister(RejectedUnauthoritativeTotal)
	prometheus.MustRegister(ReplayLogBytes)
	prometheus.MustRegister(ReplayLogRecordsWritten)
	prometheus.MustRegister(RelayLatency)
	prometheus.MustRegister(SendQueueTimeoutsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
