package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups answered from a generation by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_hits_total",
			Help: "Total number of cache store hits",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// CacheMisses tracks lookups with no stored entry
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_misses_total",
			Help: "Total number of cache store misses",
		},
		[]string{"backend"},
	)

	// EntriesWritten tracks stored entries
	EntriesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_entries_written_total",
			Help: "Total number of cache entries written",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks backend operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"backend", "operation"}, // "open", "match", "put", "keys", "delete"
	)
)
