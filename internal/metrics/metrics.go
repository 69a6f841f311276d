// Package metrics provides Prometheus metrics for the dashboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend calls
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_backend_requests_total",
			Help: "Requests sent to the REST backend",
		},
		[]string{"method", "status"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shankh_backend_request_duration_seconds",
			Help:    "Latency of REST backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Lookup cache
	LookupRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_lookup_requests_total",
			Help: "Lookup cache reads by outcome (hit, miss, error)",
		},
		[]string{"entity", "outcome"},
	)

	LookupInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_lookup_invalidations_total",
			Help: "Lookup cache invalidations",
		},
		[]string{"entity"},
	)

	// Collections
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_mutations_total",
			Help: "Create, update, delete and import operations by result",
		},
		[]string{"entity", "operation", "result"},
	)

	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_stale_responses_total",
			Help: "Fetch responses discarded because a newer fetch was issued",
		},
		[]string{"entity"},
	)

	// CSV import
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shankh_import_rows_total",
			Help: "CSV rows processed by import validation",
		},
		[]string{"entity", "result"},
	)
)
