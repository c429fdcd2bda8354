package retry

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the policy.
var (
	// ErrFatal is matched by every error that must stop the whole run:
	// an exhausted retry budget or a failed structurally required fetch.
	ErrFatal = errors.New("fatal")

	// ErrCancelled is returned when the context is cancelled during a backoff wait.
	ErrCancelled = errors.New("cancelled during retry backoff")
)

// FatalError reports that an operation could not be completed.
type FatalError struct {
	Operation string
	Attempts  int
	Err       error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: fatal after %d attempts: %v", e.Operation, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: fatal: %v", e.Operation, e.Err)
}

// Unwrap returns the last underlying failure.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFatal) succeed.
func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// Fatal wraps err as a FatalError for operation. A nil err stays nil and an
// already fatal error is returned unchanged.
func Fatal(operation string, err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return &FatalError{Operation: operation, Err: err}
}

// Classification tells the policy what to do with a failed attempt.
type Classification struct {
	// Retryable errors are retried until the budget is spent.
	Retryable bool

	// Hint is a server-suggested wait that replaces the computed backoff.
	Hint time.Duration

	// Class labels metrics and logs (network, rate_limit, server, client).
	Class string
}

// Classifier maps an error to a Classification.
type Classifier func(err error) Classification

// The policy does not import the transport. Errors opt into retries by
// implementing these methods.
type retryable interface {
	Retryable() bool
}

type hinted interface {
	RetryHint() time.Duration
}

type classed interface {
	Class() string
}

// DefaultClassifier inspects the error chain for Retryable, RetryHint and
// Class methods. Errors without them are not retried.
func DefaultClassifier(err error) Classification {
	var c Classification

	var cl classed
	if errors.As(err, &cl) {
		c.Class = cl.Class()
	}

	var r retryable
	if errors.As(err, &r) {
		c.Retryable = r.Retryable()
	}

	var h hinted
	if errors.As(err, &h) {
		c.Hint = h.RetryHint()
	}

	if c.Class == "" {
		c.Class = "other"
	}
	return c
}
