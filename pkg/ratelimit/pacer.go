package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for pacing.
var (
	remainingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_collector_rate_limit_remaining",
		Help: "Requests remaining in the current server rate limit window (-1 when unknown)",
	})

	cooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_collector_rate_limit_cooldowns_total",
		Help: "Total number of server throttle signals that started a cooldown",
	})

	pacingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_collector_pacing_wait_seconds",
		Help:    "Time a call spent waiting at the pacing gate",
		Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5, 30, 60},
	})
)

// DefaultMinInterval is the default spacing between two outbound calls.
const DefaultMinInterval = 500 * time.Millisecond

// Pacer serializes callers through one token bucket (burst 1) and holds
// them back while a server cooldown is active. It is safe for concurrent use.
type Pacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state State
}

// NewPacer creates a pacer that lets one call through every minInterval.
// A non-positive interval disables spacing but keeps cooldown handling.
func NewPacer(minInterval time.Duration, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
		state:   State{Remaining: RemainingUnknown},
	}
}

// Wait blocks until the caller may issue its call: first until any active
// cooldown has passed, then until the token bucket releases a token.
func (p *Pacer) Wait(ctx context.Context) error {
	start := p.now()
	defer func() {
		pacingWaitSeconds.Observe(p.now().Sub(start).Seconds())
	}()

	if d := p.State().TimeUntilReset(p.now()); d > 0 {
		p.logger.Warn().
			Dur("wait_duration", d).
			Msg("Server cooldown active - holding request")

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("pacer cooldown: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	return nil
}

// State returns a copy of the current throttle state.
func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Throttled records a server throttle signal. The next callers are held
// back for hint; a zero hint records the signal without a cooldown.
func (p *Pacer) Throttled(hint time.Duration) {
	now := p.now()

	p.mu.Lock()
	if until := now.Add(hint); hint > 0 && until.After(p.state.CooldownUntil) {
		p.state.CooldownUntil = until
	}
	p.state.Remaining = 0
	p.state.LastUpdate = now
	p.mu.Unlock()

	cooldownsTotal.Inc()
	remainingGauge.Set(0)
	p.logger.Warn().
		Dur("cooldown", hint).
		Msg("Server throttle signal received")
}

// UpdateFromHeaders refreshes the remaining quota from response headers.
// Missing headers leave the state untouched.
func (p *Pacer) UpdateFromHeaders(h http.Header) error {
	v := strings.TrimSpace(h.Get(HeaderRateLimitRemaining))
	if v == "" {
		return nil
	}

	remaining, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRateLimitRemaining, err)
	}

	now := p.now()
	p.mu.Lock()
	p.state.Remaining = remaining
	p.state.LastUpdate = now
	if remaining == 0 {
		if hint := ParseRetryAfter(h, now); hint > 0 {
			p.state.CooldownUntil = now.Add(hint)
		}
	}
	p.mu.Unlock()

	remainingGauge.Set(float64(remaining))
	if remaining == 0 {
		p.logger.Warn().Int("remaining", remaining).Msg("Rate limit window exhausted")
	} else {
		p.logger.Debug().Int("remaining", remaining).Msg("Rate limit state updated")
	}
	return nil
}
