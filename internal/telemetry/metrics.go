// Package telemetry exposes the Prometheus metrics for every component of
// the probing engine. It holds no logic — components call
// into these package-level collectors directly from their own code paths.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Heartbeat / membership ─────────────────────────────────────────────────

// HeartbeatWrites tracks self-heartbeat writes by outcome.
var HeartbeatWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "heartbeat_writes_total",
	Help:      "Self heartbeat writes by outcome.",
}, []string{"outcome"})

// NodeState tracks this node's own lifecycle state (0=joining, 1=live,
// 2=suspect, 3=dead).
var NodeState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "uptimemesh",
	Name:      "node_state",
	Help:      "Local node lifecycle state (0=joining, 1=live, 2=suspect, 3=dead).",
})

// ClusterLiveNodes tracks the size of the live set as seen by this node.
var ClusterLiveNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "uptimemesh",
	Name:      "cluster_live_nodes",
	Help:      "Number of live nodes in the current ring view.",
})

// ─── Range manager / assignment ─────────────────────────────────────────────

// OwnedChecks tracks the size of this node's currently-owned check set.
var OwnedChecks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "uptimemesh",
	Name:      "owned_checks",
	Help:      "Number of checks currently owned by this node.",
})

// ReconcileChurn tracks ownership deltas emitted by the range manager.
var ReconcileChurn = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "reconcile_churn_total",
	Help:      "Ownership changes emitted by the range manager, by kind.",
}, []string{"kind"})

// ChecksSkipped tracks checks excluded from a reconcile pass because they
// failed validation, rather than assigned or not.
var ChecksSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "checks_skipped_total",
	Help:      "Checks excluded from assignment because Check.Valid() returned false.",
})

// ─── Scheduler ───────────────────────────────────────────────────────────────

// SchedulerQueueDepth tracks the number of entries currently pending in the
// scheduler's priority queue.
var SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "uptimemesh",
	Name:      "scheduler_queue_depth",
	Help:      "Entries currently pending in the scheduler priority queue.",
})

// SchedulerMissedTicks tracks ticks a check's dispatch was fast-forwarded
// past because the node fell behind.
var SchedulerMissedTicks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "scheduler_missed_ticks_total",
	Help:      "Total tick intervals skipped by advance() across all checks.",
})

// SchedulerDispatchLatency tracks the gap between a check's due time and the
// moment the scheduler actually dispatches it.
var SchedulerDispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "uptimemesh",
	Name:      "scheduler_dispatch_latency_seconds",
	Help:      "Delay between a check's theoretical due time and dispatch.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
})

// ─── Probe executor ──────────────────────────────────────────────────────────

// ProbeOutcomes tracks completed probes by outcome and region.
var ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "probe_outcomes_total",
	Help:      "Completed probes by outcome and region.",
}, []string{"outcome", "region"})

// ProbeResponseTime tracks probe response time in seconds, by region.
var ProbeResponseTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "uptimemesh",
	Name:      "probe_response_time_seconds",
	Help:      "Probe response time in seconds, by region.",
	Buckets:   prometheus.DefBuckets,
}, []string{"region"})

// ─── Result writer ───────────────────────────────────────────────────────────

// ResultWriteFailures tracks result rows dropped after exhausting the store
// adapter's retry budget, dropped with a warning metric rather than retried forever.
var ResultWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "result_write_failures_total",
	Help:      "Result rows dropped after the store adapter's retry budget was exhausted.",
})

// ─── Store adapter ───────────────────────────────────────────────────────────

// StoreRequestLatency tracks store round-trip latency by operation.
var StoreRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "uptimemesh",
	Name:      "store_request_latency_seconds",
	Help:      "Store adapter round-trip latency by operation.",
	Buckets:   prometheus.DefBuckets,
}, []string{"op"})

// StoreErrors tracks store adapter failures by operation and error kind.
var StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uptimemesh",
	Name:      "store_errors_total",
	Help:      "Store adapter failures by operation and error kind.",
}, []string{"op", "kind"})

// ─── Aggregator ──────────────────────────────────────────────────────────────

// AggregatorQueryLatency tracks get_metrics/get_metrics_graph latency.
var AggregatorQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "uptimemesh",
	Name:      "aggregator_query_latency_seconds",
	Help:      "Metrics query latency by endpoint.",
	Buckets:   prometheus.DefBuckets,
}, []string{"endpoint"})
