package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks store hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog store hits",
		},
		[]string{"backend"}, // "redis", "memory"
	)

	// CacheMisses tracks store misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog store misses",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks bytes written by backend
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_written_bytes_total",
			Help: "Total number of bytes written to the catalog store",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_errors_total",
			Help: "Total number of catalog store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "delete"
	)
)
