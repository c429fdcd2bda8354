package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CacheEntry represents a cached OpenReview response body.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag from the response, kept for diagnostics
	ETag string `json:"etag,omitempty"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// NewEntry builds an entry for body. The lifetime comes from the response's
// Cache-Control max-age, then its Expires header, then fallback.
// "no-store" and "no-cache" produce an already expired entry.
func NewEntry(body []byte, headers http.Header, fallback time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Data:     body,
		ETag:     headers.Get("ETag"),
		Expires:  now.Add(lifetime(headers, now, fallback)),
		CachedAt: now,
	}
}

func lifetime(headers http.Header, now time.Time, fallback time.Duration) time.Duration {
	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return 0
			case strings.HasPrefix(directive, "max-age="):
				if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && secs >= 0 {
					return time.Duration(secs) * time.Second
				}
			}
		}
	}

	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			if d := expires.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}

	return fallback
}
