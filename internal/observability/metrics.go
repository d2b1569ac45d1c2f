package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	commitDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	blobSizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the core.
type Metrics struct {
	// State machine
	TransitionsTotal        *prometheus.CounterVec
	IllegalTransitionsTotal *prometheus.CounterVec
	TransitionConflicts     prometheus.Counter

	// Checkpoint store
	CheckpointCommitsTotal   *prometheus.CounterVec
	CheckpointCommitDuration prometheus.Histogram
	CheckpointBlobSizeBytes  prometheus.Histogram
	WritesAppendedTotal      prometheus.Counter

	// Event queue
	EventsEnqueuedTotal       *prometheus.CounterVec
	EventsDeliveredTotal      prometheus.Counter
	DuplicateCorrelationTotal prometheus.Counter

	// Retention
	SweepRunsTotal       prometheus.Counter
	SweepErrorsTotal     prometheus.Counter
	SweptPartitionsTotal prometheus.Counter

	// Liveness
	StaleWorkflows prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentloop_workflow_transitions_total",
			Help: "Total number of applied workflow state transitions.",
		}, []string{"event", "to"}),
		IllegalTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentloop_workflow_illegal_transitions_total",
			Help: "Total number of rejected workflow transition attempts.",
		}, []string{"event"}),
		TransitionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_workflow_transition_conflicts_total",
			Help: "Total number of optimistic-concurrency conflicts on status updates.",
		}),

		CheckpointCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentloop_checkpoint_commits_total",
			Help: "Total number of checkpoint commits.",
		}, []string{"status"}),
		CheckpointCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentloop_checkpoint_commit_duration_seconds",
			Help:    "Checkpoint commit duration in seconds.",
			Buckets: commitDurationBuckets,
		}),
		CheckpointBlobSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentloop_checkpoint_blob_size_bytes",
			Help:    "Checkpoint snapshot blob size in bytes.",
			Buckets: blobSizeBuckets,
		}),
		WritesAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_checkpoint_writes_appended_total",
			Help: "Total number of checkpoint write log entries appended.",
		}),

		EventsEnqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentloop_events_enqueued_total",
			Help: "Total number of control events enqueued.",
		}, []string{"event_type"}),
		EventsDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_events_delivered_total",
			Help: "Total number of control events marked delivered.",
		}),
		DuplicateCorrelationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_events_duplicate_correlation_total",
			Help: "Total number of enqueues rejected for correlation id reuse.",
		}),

		SweepRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_retention_sweep_runs_total",
			Help: "Total number of retention sweep cycles.",
		}),
		SweepErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_retention_sweep_errors_total",
			Help: "Total number of failed retention sweep cycles.",
		}),
		SweptPartitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentloop_retention_swept_partitions_total",
			Help: "Total number of expired checkpoint partitions dropped.",
		}),

		StaleWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentloop_stale_workflows",
			Help: "Number of non-terminal workflows with a heartbeat older than the staleness threshold.",
		}),
	}

	reg.MustRegister(
		m.TransitionsTotal, m.IllegalTransitionsTotal, m.TransitionConflicts,
		m.CheckpointCommitsTotal, m.CheckpointCommitDuration, m.CheckpointBlobSizeBytes,
		m.WritesAppendedTotal,
		m.EventsEnqueuedTotal, m.EventsDeliveredTotal, m.DuplicateCorrelationTotal,
		m.SweepRunsTotal, m.SweepErrorsTotal, m.SweptPartitionsTotal,
		m.StaleWorkflows,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
