// Package retry implements the failure policy shared by every remote call:
// bounded exponential backoff with jitter, server wait hints for throttling,
// and escalation to a fatal error once the budget is spent.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_retries_total",
		Help: "Total number of retry attempts by operation and error class",
	}, []string{"operation", "error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_collector_retry_backoff_seconds",
		Help:    "Backoff duration before a retry by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_retry_exhausted_total",
		Help: "Total number of operations that exhausted the retry budget",
	}, []string{"operation", "error_class"})
)

// Config holds the retry budget and backoff shape.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential part of the backoff.
	MaxDelay time.Duration

	// Jitter is the fraction of the backoff added as uniform random noise.
	Jitter float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxDelay:   5 * time.Minute,
		Jitter:     0.2,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the wall-clock Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy decides, per failed call, whether to wait and retry or give up.
type Policy struct {
	cfg      Config
	sleep    Sleeper
	rand     func() float64
	classify Classifier
	observe  func(Event)
	logger   zerolog.Logger
}

// Event describes one scheduled retry.
type Event struct {
	Operation string
	Attempt   int
	Class     string
	Wait      time.Duration
	Err       error
}

// Option customizes a Policy.
type Option func(*Policy)

// WithSleeper replaces the wall-clock sleeper (tests).
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) { p.sleep = s }
}

// WithRand replaces the jitter source; fn returns values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(p *Policy) { p.rand = fn }
}

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(p *Policy) { p.classify = c }
}

// WithObserver registers fn to be called before every backoff wait.
func WithObserver(fn func(Event)) Option {
	return func(p *Policy) { p.observe = fn }
}

// WithLogger sets the logger used for retry events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// New creates a Policy.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		cfg:      cfg.normalize(),
		sleep:    SleepContext,
		rand:     rand.Float64,
		classify: DefaultClassifier,
		logger:   log.With().Str("component", "retry").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Backoff returns min(MaxDelay, BaseDelay*2^attempt) for the zero-based
// retry number attempt, without jitter.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.cfg.MaxDelay/2 {
			return p.cfg.MaxDelay
		}
		d *= 2
	}
	if d > p.cfg.MaxDelay {
		return p.cfg.MaxDelay
	}
	return d
}

// Delay returns the wait before retry number attempt: the capped backoff
// plus a random jitter of up to Jitter times that backoff.
func (p *Policy) Delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * p.cfg.Jitter * p.rand())
	}
	return d
}

// Attempt runs action until it succeeds, fails with a non-retryable error
// (returned unchanged), or the retry budget is spent (FatalError). The
// attempt counter is local to this call.
func (p *Policy) Attempt(ctx context.Context, operation string, action func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := action(ctx)
		if err == nil {
			if attempt > 0 {
				p.logger.Info().
					Str("operation", operation).
					Int("retries", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		class := p.classify(err)
		if !class.Retryable {
			return err
		}

		if attempt >= p.cfg.MaxRetries {
			retryExhaustedTotal.WithLabelValues(operation, class.Class).Inc()
			p.logger.Warn().
				Err(err).
				Str("operation", operation).
				Str("error_class", class.Class).
				Int("max_retries", p.cfg.MaxRetries).
				Msg("Retry attempts exhausted")
			return &FatalError{Operation: operation, Attempts: attempt + 1, Err: err}
		}

		wait := class.Hint
		if wait <= 0 {
			wait = p.Delay(attempt)
		}

		retriesTotal.WithLabelValues(operation, class.Class).Inc()
		retryBackoffSeconds.WithLabelValues(class.Class).Observe(wait.Seconds())
		p.logger.Warn().
			Err(err).
			Str("operation", operation).
			Str("error_class", class.Class).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying after backoff")

		if p.observe != nil {
			p.observe(Event{Operation: operation, Attempt: attempt + 1, Class: class.Class, Wait: wait, Err: err})
		}

		if err := p.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCancelled, operation, err)
		}
	}
}

// Do is Attempt for actions that produce a value.
func Do[T any](ctx context.Context, p *Policy, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Attempt(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
