package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorClass represents a classification of call failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors (and 408).
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 and body-signalled throttling.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors and an open breaker.
	ErrorClassNetwork ErrorClass = "network"
)

// NetworkError is a transport-level failure: dial, timeout, reset, or the
// circuit breaker refusing the call.
type NetworkError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("openreview network error (%s): %v", e.Endpoint, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports that network failures are transient.
func (e *NetworkError) Retryable() bool { return true }

// Class returns the error class label.
func (e *NetworkError) Class() string { return string(ErrorClassNetwork) }

// RateLimitedError is a server throttle signal.
type RateLimitedError struct {
	Endpoint   string
	StatusCode int

	// RetryAfter is the server's wait hint, zero when absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("openreview rate limited (%s, status %d): retry after %s",
			e.Endpoint, e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("openreview rate limited (%s, status %d)", e.Endpoint, e.StatusCode)
}

// Retryable reports that throttling is transient.
func (e *RateLimitedError) Retryable() bool { return true }

// RetryHint returns the server's wait hint.
func (e *RateLimitedError) RetryHint() time.Duration { return e.RetryAfter }

// Class returns the error class label.
func (e *RateLimitedError) Class() string { return string(ErrorClassRateLimit) }

// ServerError is any other non-2xx response.
type ServerError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("openreview %s error (%s, status %d): %s",
		e.Class(), e.Endpoint, e.StatusCode, e.Message)
}

// Retryable is true for 5xx and 408; other 4xx are permanent.
func (e *ServerError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
}

// Class returns the error class label.
func (e *ServerError) Class() string {
	if e.Retryable() {
		return string(ErrorClassServer)
	}
	return string(ErrorClassClient)
}

// IsClientError reports whether err carries a permanent 4xx response.
func IsClientError(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && !se.Retryable()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.StatusCode
	}
	return 0
}

// classOf returns the error class of a call failure for metrics labels.
func classOf(err error) ErrorClass {
	var (
		ne *NetworkError
		rl *RateLimitedError
		se *ServerError
	)
	switch {
	case errors.As(err, &ne):
		return ErrorClassNetwork
	case errors.As(err, &rl):
		return ErrorClassRateLimit
	case errors.As(err, &se):
		return ErrorClass(se.Class())
	default:
		return ""
	}
}
