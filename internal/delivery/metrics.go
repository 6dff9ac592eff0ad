package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_sends_total",
			Help: "Total number of send attempts by provider and result",
		},
		[]string{"provider", "result"}, // sent, failed
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of provider transmissions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)
