// Package metrics exposes Prometheus instruments for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Translation traffic
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrelay_requests_total",
			Help: "Total translation requests by classification and outcome",
		},
		[]string{"classification", "status"}, // status: ok/cached/error
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmrelay_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"classification", "streaming"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrelay_upstream_errors_total",
			Help: "Upstream failures by mapped error kind",
		},
		[]string{"kind"},
	)

	// Cache effectiveness
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrelay_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"}, // result: hit/miss
	)

	// Dispatch queue
	QueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmrelay_queue_waiting",
			Help: "Callers blocked waiting for a dispatch slot",
		},
	)

	QueueInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmrelay_queue_in_flight",
			Help: "Admitted upstream calls not yet released",
		},
	)

	// Token usage reported by the upstream
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmrelay_tokens_total",
			Help: "Tokens consumed by direction",
		},
		[]string{"direction"}, // direction: input/output
	)
)
