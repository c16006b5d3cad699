package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsScheduledCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Name:      "jobs_scheduled_total",
			Help:      "Total number of delivery jobs persisted for later dispatch.",
		},
	)

	deliveriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Name:      "deliveries_total",
			Help:      "Total number of completed delivery attempts.",
		},
		[]string{"mode", "outcome"}, // mode: "immediate"|"poller"|"jetstream"; outcome: "sent"|"failed"
	)

	deliveryDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Name:      "delivery_duration_seconds",
			Help:      "Duration of a full delivery (all retry attempts included).",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	deliveryAttemptsHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Name:      "delivery_attempts",
			Help:      "Number of send attempts used per delivery.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)
)
