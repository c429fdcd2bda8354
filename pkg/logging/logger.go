// Package logging configures the process-wide zerolog logger used by every
// collector component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// NoColor disables colors in pretty output.
	NoColor bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name. "warning" is accepted for warn.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRun attaches the run id and venue to every event of the global
// logger, so that interleaved output of resumed runs can be told apart.
func WithRun(runID, venue string) zerolog.Logger {
	log.Logger = log.With().Str("run_id", runID).Str("venue", venue).Logger()
	return log.Logger
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Every page and forum request, pacing updates
//   - Per-record commits
//
// Info: Normal operation events
//   - Run start/finish, resume set, listing replayed or resumed
//   - Progress every N submissions
//   - Export written
//
// Warn: Warning conditions that don't prevent operation
//   - Server throttle signals and cooldowns
//   - Retry attempts
//   - Skipped submissions (4xx forum, malformed record)
//   - Torn journal tail discarded, cache errors
//
// Error: Error conditions requiring attention
//   - Submission left uncommitted after retries
//   - Run aborted (fatal) and its cause
//
// Context Fields:
//   - run_id, venue: identify the collection run
//   - submission_id: submission being processed
//   - endpoint, status: API call and HTTP status
//   - error_class: network, rate_limit, server, client
//   - attempt, backoff: retry position and wait
//   - cursor, next: listing position
