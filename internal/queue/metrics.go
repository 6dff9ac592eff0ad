package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	TasksEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_enqueued_total",
			Help: "Total number of tasks enqueued per channel",
		},
		[]string{"channel"},
	)

	TasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_processed_total",
			Help: "Total number of tasks processed by final state",
		},
		[]string{"state"}, // done, failed, dlq
	)

	TaskProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_task_processing_duration_seconds",
			Help:    "Duration of task body execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	DLQTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dlq_tasks_total",
			Help: "Total number of tasks moved to DLQ by cause",
		},
		[]string{"cause"}, // permanent, exhausted
	)
)
