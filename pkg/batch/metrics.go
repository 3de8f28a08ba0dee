package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for orchestration runs.
var (
	batchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lrn_batch_runs_total",
		Help: "Total number of batch resolution runs",
	})

	batchLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrn_batch_lookups_total",
		Help: "Total numbers handled by batch runs by result (cache_hit, success, error)",
	}, []string{"result"})

	batchSubBatchTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lrn_batch_subbatch_timeouts_total",
		Help: "Total number of sub-batches that hit their aggregate timeout",
	})

	batchChunkFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lrn_batch_chunk_failures_total",
		Help: "Total number of major batches aborted by an unexpected failure",
	})

	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lrn_batch_duration_seconds",
		Help:    "Wall time of batch resolution runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)
