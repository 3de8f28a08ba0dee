// Package metrics exposes the Prometheus registry used by the LRN resolver.
// Metrics are defined in their owning packages (resolver, throttle, cache,
// batch) via promauto and land in the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the resolver packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Names lists every metric family the resolver packages define.
var Names = []string{
	// pkg/resolver
	"lrn_requests_total",
	"lrn_request_duration_seconds",
	"lrn_retries_total",
	"lrn_retry_backoff_seconds",
	"lrn_retry_exhausted_total",
	// pkg/throttle
	"lrn_throttle_pause_seconds",
	"lrn_throttle_success_rate",
	"lrn_throttle_adjustments_total",
	// pkg/cache
	"lrn_cache_hits_total",
	"lrn_cache_misses_total",
	"lrn_cache_entries",
	"lrn_cache_errors_total",
	// pkg/batch
	"lrn_batch_runs_total",
	"lrn_batch_lookups_total",
	"lrn_batch_subbatch_timeouts_total",
	"lrn_batch_chunk_failures_total",
	"lrn_batch_duration_seconds",
}

// Handler returns the HTTP handler serving Gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/resolver):
//   - lrn_requests_total{status} (Counter): Attempts by outcome (ok, HTTP status, network, timeout, short_body)
//   - lrn_request_duration_seconds (Histogram): Attempt duration
//
// Retry Metrics (pkg/resolver):
//   - lrn_retries_total{error_class} (Counter): Retries by error class
//   - lrn_retry_backoff_seconds (Histogram): Backoff before a retry
//   - lrn_retry_exhausted_total{error_class} (Counter): Lookups that failed every attempt
//
// Throttle Metrics (pkg/throttle):
//   - lrn_throttle_pause_seconds (Gauge): Current recommended pause
//   - lrn_throttle_success_rate (Gauge): Success rate over the outcome window
//   - lrn_throttle_adjustments_total{direction} (Counter): Pause adjustments (speed_up, slow_down)
//
// Cache Metrics (pkg/cache):
//   - lrn_cache_hits_total{store} (Counter): Cache hits
//   - lrn_cache_misses_total (Counter): Cache misses
//   - lrn_cache_entries{store} (Gauge): Entries after the last load or save
//   - lrn_cache_errors_total{operation} (Counter): Store errors (load, save)
//
// Batch Metrics (pkg/batch):
//   - lrn_batch_runs_total (Counter): Orchestration runs
//   - lrn_batch_lookups_total{result} (Counter): Numbers by result (cache_hit, success, error)
//   - lrn_batch_subbatch_timeouts_total (Counter): Sub-batches that hit their timeout
//   - lrn_batch_chunk_failures_total (Counter): Major batches aborted by a failure
//   - lrn_batch_duration_seconds (Histogram): Run wall time
//
// Example Prometheus Queries:
//
//   # Lookup Error Rate
//   rate(lrn_batch_lookups_total{result="error"}[5m]) /
//   rate(lrn_batch_lookups_total{result=~"success|error"}[5m])
//
//   # Throttle Backing Off
//   lrn_throttle_pause_seconds > 0.5
//
//   # P95 Attempt Latency
//   histogram_quantile(0.95, rate(lrn_request_duration_seconds_bucket[5m]))
