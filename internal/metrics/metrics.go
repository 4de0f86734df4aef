package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Change capture metrics
	EventsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_capture_events_total",
			Help: "Total number of change events observed",
		},
		[]string{"source", "kind"},
	)

	EventsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strategiq_capture_events_skipped_total",
			Help: "Total number of change records skipped (non-insert or unparseable)",
		},
	)

	// Router metrics
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_router_deliveries_total",
			Help: "Total number of per-target deliveries attempted by the router",
		},
		[]string{"target", "status"},
	)

	// Queue metrics
	ItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_queue_enqueued_total",
			Help: "Total number of work items enqueued",
		},
		[]string{"queue"},
	)

	ItemsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_queue_deadlettered_total",
			Help: "Total number of work items moved to the dead-letter queue",
		},
		[]string{"queue"},
	)

	// Worker metrics
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_worker_items_total",
			Help: "Total number of work items processed by outcome",
		},
		[]string{"kind", "outcome"},
	)

	OperationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strategiq_worker_operation_duration_seconds",
			Help:    "Duration of external operation invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Status tracker metrics
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategiq_status_transitions_total",
			Help: "Total number of campaign status transitions applied",
		},
		[]string{"to"},
	)

	StaleTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strategiq_status_stale_transitions_total",
			Help: "Total number of stale status transition attempts ignored",
		},
	)

	RecordsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "strategiq_status_records_expired_total",
			Help: "Total number of campaign records removed by the expiry reaper",
		},
	)
)
