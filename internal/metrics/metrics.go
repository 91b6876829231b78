// Package metrics registers the Prometheus collectors shared across the
// HTTP surface and the batch pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transferlens",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RateLimited counts requests rejected by the limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429.",
	})

	// PipelineStageDuration observes batch stage runtimes.
	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transferlens",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Daily pipeline stage runtime.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"stage"})

	// PipelineRowsWritten counts rows produced per stage.
	PipelineRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "pipeline",
		Name:      "rows_written_total",
		Help:      "Rows written by each pipeline stage.",
	}, []string{"stage"})

	// PipelineStageErrors counts per-unit failures inside stages.
	PipelineStageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "pipeline",
		Name:      "stage_errors_total",
		Help:      "Per-unit failures inside pipeline stages.",
	}, []string{"stage"})

	// TimeTravelViolations counts rejected as-of reads and leaky labels.
	TimeTravelViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "temporal",
		Name:      "violations_total",
		Help:      "Time-travel and data-leakage rejections.",
	})

	// HeuristicFallbacks counts scoring runs served without a trained model.
	HeuristicFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "predict",
		Name:      "heuristic_fallbacks_total",
		Help:      "Scoring runs that fell back to the heuristic model.",
	})

	// CacheHits counts read-through cache outcomes.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferlens",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups by outcome (hit, miss, bypass, error).",
	}, []string{"outcome"})
)
