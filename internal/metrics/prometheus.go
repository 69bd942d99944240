// Package metrics provides Prometheus metrics collection for the search
// gateway: request counts and latencies by classification, per-tier
// cache statistics, fallback counters, and engine health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "searchmux"

// LatencyBuckets covers the gateway SLO range: simple P50 at 100ms,
// complex P50 at 300ms, deadline ceiling at 2s.
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3,
	0.5, 0.7, 1.0, 1.5, 2.0, 3.0, 5.0,
}

var (
	// RequestsTotal counts pipeline requests by endpoint, tenant,
	// classification, and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total gateway requests",
		},
		[]string{"endpoint", "tenant", "classification", "status"},
	)

	// RequestErrors counts user-visible errors by endpoint and kind.
	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Total gateway request errors",
		},
		[]string{"endpoint", "kind"},
	)

	// RequestLatency tracks end-to-end latency by endpoint and
	// classification.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"endpoint", "classification"},
	)

	// EngineRequests counts engine adapter calls by engine and outcome.
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total engine adapter calls",
		},
		[]string{"engine", "operation", "outcome"},
	)

	// EngineLatency tracks engine adapter call latency.
	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_latency_seconds",
			Help:      "Engine adapter call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"engine", "operation"},
	)

	// CacheHits counts cache hits by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMisses counts full cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses across both tiers",
		},
	)

	// CacheFaults counts swallowed L2 faults.
	CacheFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_faults_total",
			Help:      "Swallowed shared-cache faults",
		},
	)

	// CacheStaleServes counts stale-on-error serves from L1.
	CacheStaleServes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_serves_total",
			Help:      "Expired L1 entries served while L2 was unavailable",
		},
	)

	// FallbacksTotal counts dispatcher fallbacks by path taken.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Dispatcher fallback results by path",
		},
		[]string{"path"}, // stale-cache, degraded, empty
	)

	// CoalescedMisses counts duplicate in-flight misses that shared a
	// leader's result.
	CoalescedMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_misses_total",
			Help:      "Concurrent identical misses served by a shared dispatch",
		},
	)

	// ProbeHealthy reports the last health probe result per target
	// (1 healthy, 0 unhealthy).
	ProbeHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_healthy",
			Help:      "Most recent health probe result per target",
		},
		[]string{"target"},
	)

	// RateLimited counts transport-layer rejections.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the transport rate limiter",
		},
		[]string{"tenant"},
	)
)
