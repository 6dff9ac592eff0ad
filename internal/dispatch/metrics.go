package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_tasks_enqueued_total",
			Help: "Send tasks created by committed record writes",
		},
		[]string{"operation"},
	)

	RecordsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_records_skipped_total",
			Help: "Written records not dispatched because they were not outgoing",
		},
		[]string{"status"},
	)
)
