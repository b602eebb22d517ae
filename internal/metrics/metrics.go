package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run-level metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capi_dispatch_runs_total",
			Help: "Total number of dispatch runs by outcome",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capi_dispatch_run_duration_seconds",
			Help:    "Duration of dispatch runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Row pipeline metrics
	RowsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capi_dispatch_rows_fetched_total",
			Help: "Total number of source rows fetched from the analytics source",
		},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capi_dispatch_rows_skipped_total",
			Help: "Total number of rows skipped by reason",
		},
		[]string{"reason"},
	)

	EventsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capi_dispatch_events_dispatched_total",
			Help: "Total number of events delivered downstream",
		},
	)

	// Delivery metrics
	DeliveryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capi_dispatch_delivery_attempts_total",
			Help: "Total number of delivery attempts including retries",
		},
	)

	DeliveryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capi_dispatch_delivery_errors_total",
			Help: "Total number of failed delivery attempts",
		},
	)
)
