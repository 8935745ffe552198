/*
Package metrics defines sentryd's Prometheus metrics and a periodic
collector that samples the registry and replay logs.

# Metrics Catalog

Check pipeline:

	sentryd_services_total{state}            gauge
	sentryd_hosts_total                       gauge
	sentryd_checks_executed_total{exit_status} counter
	sentryd_checks_failed_to_spawn_total       counter
	sentryd_check_execution_duration_seconds   histogram
	sentryd_scheduling_latency_seconds         histogram
	sentryd_hard_state_changes_total{state}    counter

Cluster layer:

	sentryd_endpoints_connected                gauge
	sentryd_endpoint_connected{endpoint}       gauge
	sentryd_relayed_messages_total{method}     counter
	sentryd_dropped_stale_messages_total       counter
	sentryd_rejected_unauthoritative_total     counter
	sentryd_replay_log_bytes{peer}             gauge
	sentryd_replay_log_records_written_total{peer} counter
	sentryd_relay_latency_seconds              histogram

# Usage

	metrics.ChecksExecutedTotal.WithLabelValues("0").Inc()

	timer := metrics.NewTimer()
	result := r.Run(ctx, argv, nil, nil, timeout) // r is a *runner.Runner
	timer.ObserveDuration(metrics.CheckExecutionDuration)

Gauges that reflect registry/replay-log state (ServicesTotal,
EndpointConnected, ReplayLogBytes, ...) are not updated inline; Collector
samples them on a 15-second tick so a slow scrape never adds lock
contention to the hot path.

	collector := metrics.NewCollector(reg, replayLog)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
