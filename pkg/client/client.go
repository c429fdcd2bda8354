// Package client provides the rate-limited OpenReview transport: one call
// primitive behind a pacing gate, a circuit breaker and an optional Redis
// response cache. It never retries; failures come back classified for the
// retry policy.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/cache"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/ratelimit"
)

// Prometheus metrics for OpenReview client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_requests_total",
		Help: "Total OpenReview requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_collector_request_duration_seconds",
		Help:    "OpenReview request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_errors_total",
		Help: "Total OpenReview call errors by class",
	}, []string{"class"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_collector_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)

// DefaultBaseURL is the OpenReview API v2 endpoint.
const DefaultBaseURL = "https://api2.openreview.net"

// Client is the OpenReview call primitive.
type Client struct {
	http    *resty.Client
	pacer   *ratelimit.Pacer
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	cache   *cache.Manager
	config  Config
	logger  zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the OpenReview API.
	BaseURL string

	// Token is presented as a bearer token when set.
	Token string

	// UserAgent header.
	UserAgent string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MinInterval is the minimum spacing between two calls.
	MinInterval time.Duration

	// BreakerFailures is the number of consecutive transport-level failures
	// that open the circuit breaker.
	BreakerFailures uint32

	// BreakerOpenTimeout is how long the breaker stays open.
	BreakerOpenTimeout time.Duration

	// Redis enables the response cache when set.
	Redis redis.UniversalClient

	// CacheTTL is the fallback lifetime of cached responses.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		UserAgent:          "review-collector/1.0",
		Timeout:            30 * time.Second,
		MinInterval:        ratelimit.DefaultMinInterval,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
		CacheTTL:           cache.DefaultTTL,
	}
}

// New creates a new OpenReview client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("min_interval must be >= 0 (got %s)", cfg.MinInterval)
	}
	if cfg.BreakerFailures == 0 {
		return nil, fmt.Errorf("breaker_failures must be >= 1")
	}

	logger := log.With().Str("component", "openreview-client").Logger()

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{logger})
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	c := &Client{
		http:   httpClient,
		pacer:  ratelimit.NewPacer(cfg.MinInterval, logger),
		config: cfg,
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    "openreview",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Only transport-level failures and 5xx count against the breaker.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var se *ServerError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			var rl *RateLimitedError
			return errors.As(err, &rl)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})

	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return c, nil
}

// Call performs GET endpoint?params and returns the raw response body.
// A failure is a *NetworkError, *RateLimitedError or *ServerError, or the
// context's error when ctx ends first.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	cacheKey := cache.CacheKey{Endpoint: endpoint, QueryParams: params}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving response from cache")
			requestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", params.Encode()).
		Msg("Executing OpenReview request")

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		return c.execute(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &NetworkError{Endpoint: endpoint, Err: err}
			requestsTotal.WithLabelValues(endpoint, "breaker_open").Inc()
		}
		if class := classOf(err); class != "" {
			errorsTotal.WithLabelValues(string(class)).Inc()
		}
		return nil, err
	}

	body := resp.Body()
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()

	if c.cache != nil {
		entry := cache.NewEntry(body, resp.Header(), c.cache.DefaultTTL())
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// execute runs one HTTP exchange and classifies the outcome.
func (c *Client) execute(ctx context.Context, endpoint string, params url.Values) (*resty.Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("openreview %s: %w", endpoint, ctxErr)
		}
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}

	if err := c.pacer.UpdateFromHeaders(resp.Header()); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	if resp.IsSuccess() {
		return resp, nil
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode())).Inc()
	callErr := c.classifyResponse(endpoint, resp)

	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode()).
		Str("error_class", string(classOf(callErr))).
		Msg("OpenReview request error")

	return nil, callErr
}

// classifyResponse turns a non-2xx response into a typed error and records
// throttle signals at the pacing gate.
func (c *Client) classifyResponse(endpoint string, resp *resty.Response) error {
	status := resp.StatusCode()
	body := resp.Body()

	if status == 429 || isThrottleBody(body) {
		hint := ratelimit.ParseRetryAfter(resp.Header(), time.Now())
		c.pacer.Throttled(hint)
		return &RateLimitedError{Endpoint: endpoint, StatusCode: status, RetryAfter: hint}
	}

	return &ServerError{
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    errorMessage(body, resp.Status()),
	}
}

// isThrottleBody detects throttling reported in an error body.
func isThrottleBody(body []byte) bool {
	if name, err := jsonparser.GetString(body, "name"); err == nil && name == "RateLimitError" {
		return true
	}
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

// errorMessage extracts the API's error message, falling back to status.
func errorMessage(body []byte, status string) string {
	if msg, err := jsonparser.GetString(body, "message"); err == nil && msg != "" {
		return msg
	}
	return status
}

// Pacer returns the client's pacing gate.
func (c *Client) Pacer() *ratelimit.Pacer {
	return c.pacer
}

// Close releases the client's resources.
func (c *Client) Close() error {
	if c.config.Redis != nil {
		return c.config.Redis.Close()
	}
	return nil
}

// restyLogger routes resty's internal logging through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
