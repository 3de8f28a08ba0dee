package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by store
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lrn_cache_hits_total",
			Help: "Total number of LRN cache hits",
		},
		[]string{"store"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lrn_cache_misses_total",
			Help: "Total number of LRN cache misses",
		},
	)

	// CacheEntries tracks the number of entries seen at the last load or save
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lrn_cache_entries",
			Help: "Number of LRN cache entries after the last load or save",
		},
		[]string{"store"}, // "memory", "file", "redis", "postgres"
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lrn_cache_errors_total",
			Help: "Total number of LRN cache store errors",
		},
		[]string{"operation"}, // "load", "save"
	)
)
