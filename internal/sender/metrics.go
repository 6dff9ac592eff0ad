package sender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sender_outcomes_total",
			Help: "Guarded send attempts by outcome",
		},
		[]string{"outcome"}, // sent, lock_denied, gone, wrong_status, error
	)

	GuardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sender_guarded_send_duration_seconds",
			Help:    "Duration of guarded send attempts including the lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)
