// Package metrics exposes the process instrumentation: HTTP traffic,
// ingestion runs, upstream fetch latency, and cache operations.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadpulse_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadpulse_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	ingestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadpulse_ingest_runs_total",
			Help: "Ingestion runs by feed and outcome.",
		},
		[]string{"feed", "status"},
	)

	ingestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadpulse_ingest_duration_seconds",
			Help:    "Duration of one feed ingestion in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"feed"},
	)

	ingestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadpulse_ingest_records_total",
			Help: "Records touched by ingestion, by action.",
		},
		[]string{"feed", "action"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roadpulse_upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadpulse_cache_ops_total",
			Help: "Cache operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	routeChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadpulse_route_checks_total",
			Help: "Route checks by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roadpulse_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveIngest records one completed feed ingestion.
func ObserveIngest(feed, status string, durationSeconds float64) {
	ingestRunsTotal.WithLabelValues(feed, status).Inc()
	ingestDurationSeconds.WithLabelValues(feed).Observe(durationSeconds)
}

// AddIngestRecords counts rows touched by an ingestion step.
func AddIngestRecords(feed, action string, n int) {
	if n > 0 {
		ingestRecordsTotal.WithLabelValues(feed, action).Add(float64(n))
	}
}

// ObserveUpstreamLatency records the latency of one upstream call.
func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveCacheOp records one cache operation and its outcome.
func ObserveCacheOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpsTotal.WithLabelValues(op, outcome).Inc()
}

// IncCacheHit and IncCacheMiss count lookups against cached payloads.
func IncCacheHit(op string)  { cacheOpsTotal.WithLabelValues(op, "hit").Inc() }
func IncCacheMiss(op string) { cacheOpsTotal.WithLabelValues(op, "miss").Inc() }

// IncRouteCheck counts one route check by outcome (cached, fresh, error).
func IncRouteCheck(outcome string) { routeChecksTotal.WithLabelValues(outcome).Inc() }

// ExposeBuildInfo publishes the binary version gauge.
func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
