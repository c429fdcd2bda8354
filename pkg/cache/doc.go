// Package cache provides an optional Redis-backed response cache for
// OpenReview calls.
//
// Collection runs against a venue that is still under review are repeated
// often; the cache lets a rerun replay enumeration and forum responses that
// were fetched recently instead of spending request budget on them again.
//
// The cache manager provides:
//
// - Deterministic cache keys (endpoint plus sorted query)
// - TTL from the response's Cache-Control max-age or Expires header, with a
//   configurable fallback
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 10*time.Minute)
//
//	key := cache.CacheKey{
//		Endpoint:    "/notes",
//		QueryParams: url.Values{"forum": []string{"abc123"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - fetch from OpenReview
//	}
//
// # Storing Responses
//
//	entry := cache.NewEntry(body, resp.Header(), manager.DefaultTTL())
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - review_collector_cache_hits_total{kind} - Cache hits by key kind
//   - review_collector_cache_misses_total{kind} - Cache misses by key kind
//   - review_collector_cache_stored_bytes_total - Bytes written to the cache
//   - review_collector_cache_errors_total{operation} - Cache errors
package cache
