package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Response cache metrics. Hits and misses are labelled with the key kind
// (listing, forum, other).
var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_cache_hits_total",
		Help: "Response cache hits by key kind",
	}, []string{"kind"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_cache_misses_total",
		Help: "Response cache misses by key kind",
	}, []string{"kind"})

	CacheStoredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_collector_cache_stored_bytes_total",
		Help: "Bytes written to the response cache",
	})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_cache_errors_total",
		Help: "Cache operation errors by operation (get, set, delete, encode, decode)",
	}, []string{"operation"})
)
