// Package metrics exposes the collector's Prometheus metrics. The metrics
// themselves are declared with promauto next to the code that updates them
// (client, ratelimit, cache, retry, pagination, checkpoint, collector); this
// package serves the default registry over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the collector.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the mux served by Serve: /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve listens on addr and serves Handler until ctx is done. It returns
// once the listener is up; the returned channel yields the server's exit
// error (nil after a clean shutdown).
func Serve(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	logger := log.With().Str("component", "metrics").Logger()
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown error")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return ln.Addr(), done, nil
}

// Metrics Documentation
//
// Transport Metrics (pkg/client):
//   - review_collector_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status ("cached", "network_error", "breaker_open" included)
//   - review_collector_request_duration_seconds{endpoint} (Histogram): Request duration
//   - review_collector_errors_total{class} (Counter): Call errors by class (client, server, rate_limit, network)
//   - review_collector_circuit_breaker_state (Gauge): 0 closed, 1 half-open, 2 open
//
// Pacing Metrics (pkg/ratelimit):
//   - review_collector_rate_limit_remaining (Gauge): Server-reported quota left (-1 unknown)
//   - review_collector_rate_limit_cooldowns_total (Counter): Throttle signals that started a cooldown
//   - review_collector_pacing_wait_seconds (Histogram): Time spent at the pacing gate
//
// Cache Metrics (pkg/cache):
//   - review_collector_cache_hits_total{kind} (Counter): Response cache hits (listing, forum, other)
//   - review_collector_cache_misses_total{kind} (Counter): Response cache misses
//   - review_collector_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - review_collector_cache_errors_total{operation} (Counter): Cache operation errors
//
// Retry Metrics (pkg/retry):
//   - review_collector_retries_total{operation, error_class} (Counter): Retry attempts
//   - review_collector_retry_backoff_seconds{error_class} (Histogram): Backoff before a retry
//   - review_collector_retry_exhausted_total{operation, error_class} (Counter): Operations that spent the budget
//
// Listing Metrics (pkg/pagination):
//   - review_collector_pages_fetched_total (Counter): Listing pages fetched
//
// Checkpoint Metrics (pkg/checkpoint):
//   - review_collector_journal_appends_total{journal} (Counter): Entries appended
//   - review_collector_journal_append_duration_seconds{journal} (Histogram): Write + fsync time
//   - review_collector_journal_torn_tails_total{journal} (Counter): Torn tails discarded on open
//
// Run Metrics (pkg/collector):
//   - review_collector_submissions_total{outcome} (Counter): committed or skipped submissions
//   - review_collector_skips_total{stage, reason} (Counter): Skip entries
//   - review_collector_reviews_collected_total (Counter): Reviews in committed records
//   - review_collector_pending_submissions (Gauge): Enumerated but not yet committed
//   - review_collector_submission_duration_seconds (Histogram): Fetch + normalize + commit time
//
// Example Prometheus Queries:
//
//   # Throughput (records per minute)
//   rate(review_collector_submissions_total{outcome="committed"}[5m]) * 60
//
//   # Share of calls that were throttled
//   sum(rate(review_collector_errors_total{class="rate_limit"}[5m])) /
//   sum(rate(review_collector_requests_total[5m]))
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(review_collector_request_duration_seconds_bucket[5m]))
