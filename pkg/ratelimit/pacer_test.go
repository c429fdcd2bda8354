package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestState_CoolingDown(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		until    time.Time
		cooling  bool
		expected time.Duration
	}{
		{"no cooldown", time.Time{}, false, 0},
		{"cooldown in future", now.Add(30 * time.Second), true, 30 * time.Second},
		{"cooldown passed", now.Add(-time.Second), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{CooldownUntil: tt.until}
			if got := s.CoolingDown(now); got != tt.cooling {
				t.Errorf("CoolingDown() = %v, want %v", got, tt.cooling)
			}
			if got := s.TimeUntilReset(now); got != tt.expected {
				t.Errorf("TimeUntilReset() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		headers  map[string]string
		expected time.Duration
	}{
		{"no headers", nil, 0},
		{"retry-after seconds", map[string]string{"Retry-After": "30"}, 30 * time.Second},
		{"retry-after fractional", map[string]string{"Retry-After": "1.5"}, 1500 * time.Millisecond},
		{"retry-after http date", map[string]string{"Retry-After": now.Add(2 * time.Minute).Format(http.TimeFormat)}, 2 * time.Minute},
		{"retry-after in past", map[string]string{"Retry-After": now.Add(-time.Minute).Format(http.TimeFormat)}, 0},
		{"reset delta", map[string]string{"X-RateLimit-Reset": "12"}, 12 * time.Second},
		{"reset epoch", map[string]string{"X-RateLimit-Reset": "1735732860"}, 60 * time.Second},
		{"garbage", map[string]string{"Retry-After": "soon"}, 0},
		{"retry-after wins", map[string]string{"Retry-After": "5", "X-RateLimit-Reset": "100"}, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := ParseRetryAfter(h, now); got != tt.expected {
				t.Errorf("ParseRetryAfter() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPacer_EnforcesMinInterval(t *testing.T) {
	p := NewPacer(40*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// First token is immediate, the next two are spaced by the interval.
	if elapsed < 70*time.Millisecond {
		t.Errorf("3 calls took %v, expected at least ~80ms of pacing", elapsed)
	}
}

func TestPacer_SerializesConcurrentCallers(t *testing.T) {
	p := NewPacer(20*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Wait(ctx); err != nil {
				t.Errorf("Wait() error = %v", err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	first, last := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	if spread := last.Sub(first); spread < 50*time.Millisecond {
		t.Errorf("4 concurrent callers spread over %v, expected ~60ms", spread)
	}
}

func TestPacer_CooldownHoldsCallers(t *testing.T) {
	p := NewPacer(0, zerolog.Nop())
	p.Throttled(50 * time.Millisecond)

	if !p.State().CoolingDown(time.Now()) {
		t.Fatal("Expected cooldown to be active")
	}

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait returned after %v, expected to honour the cooldown", elapsed)
	}
}

func TestPacer_WaitCancelled(t *testing.T) {
	p := NewPacer(0, zerolog.Nop())
	p.Throttled(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPacer_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		shouldError   bool
		wantRemaining int
		wantCooldown  bool
	}{
		{"missing header", nil, false, RemainingUnknown, false},
		{"healthy", map[string]string{"X-RateLimit-Remaining": "42"}, false, 42, false},
		{"invalid", map[string]string{"X-RateLimit-Remaining": "many"}, true, RemainingUnknown, false},
		{"exhausted with reset", map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "30"}, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacer(0, zerolog.Nop())
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			err := p.UpdateFromHeaders(h)
			if (err != nil) != tt.shouldError {
				t.Fatalf("UpdateFromHeaders() error = %v, shouldError %v", err, tt.shouldError)
			}

			state := p.State()
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}
			if got := state.CoolingDown(time.Now()); got != tt.wantCooldown {
				t.Errorf("CoolingDown = %v, want %v", got, tt.wantCooldown)
			}
		})
	}
}
