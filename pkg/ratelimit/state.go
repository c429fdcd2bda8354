// Package ratelimit implements the single pacing gate every OpenReview call
// passes through. It enforces a minimum spacing between calls and holds back
// callers while a server-signalled cooldown is in effect.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying throttle information.
const (
	HeaderRetryAfter         = "Retry-After"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RemainingUnknown marks a state that has not seen a remaining-quota header.
const RemainingUnknown = -1

// State is the pacer's view of the server's throttle window.
type State struct {
	// Remaining is the request quota left in the current window, or
	// RemainingUnknown.
	Remaining int `json:"remaining"`

	// CooldownUntil is when the server allows requests again after a
	// throttle signal. Zero when no cooldown is active.
	CooldownUntil time.Time `json:"cooldown_until"`

	// LastUpdate is when the state last changed.
	LastUpdate time.Time `json:"last_update"`
}

// CoolingDown reports whether a cooldown is still active at now.
func (s State) CoolingDown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// TimeUntilReset returns the remaining cooldown at now, or 0.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.CooldownUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// epochThreshold separates "seconds until reset" from "unix time of reset"
// in X-RateLimit-Reset values.
const epochThreshold = 1_000_000_000

// ParseRetryAfter extracts a wait hint from response headers. Retry-After
// may be delta-seconds or an HTTP date; X-RateLimit-Reset may be
// delta-seconds or a unix timestamp. It returns 0 when no usable hint exists.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get(HeaderRetryAfter)); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return clampHint(time.Duration(secs * float64(time.Second)))
		}
		if at, err := http.ParseTime(v); err == nil {
			return clampHint(at.Sub(now))
		}
	}

	if v := strings.TrimSpace(h.Get(HeaderRateLimitReset)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n >= epochThreshold {
				return clampHint(time.Unix(n, 0).Sub(now))
			}
			return clampHint(time.Duration(n) * time.Second)
		}
	}

	return 0
}

func clampHint(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
