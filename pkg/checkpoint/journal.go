// Package checkpoint persists collection progress in an output directory as
// append-only JSON-lines journals. A journal read at any moment yields only
// complete entries: each entry is one line written with a single write and
// fsynced before Append returns, and a torn final line left by a crash is
// discarded on load and cut off before the next append.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for journal operations.
var (
	appendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_journal_appends_total",
		Help: "Total number of entries appended by journal",
	}, []string{"journal"})

	appendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_collector_journal_append_duration_seconds",
		Help:    "Time to write and fsync one journal entry",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"journal"})

	tornTailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_journal_torn_tails_total",
		Help: "Total number of torn final lines discarded by journal",
	}, []string{"journal"})
)

// ErrCorruptJournal is returned when a line other than the last one cannot
// be decoded. A crash can only tear the final line, so anything else means
// the file was edited or damaged.
var ErrCorruptJournal = errors.New("corrupt journal")

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal closed")

// Journal is an append-only JSON-lines file of T values. It is safe for
// concurrent use.
type Journal[T any] struct {
	path   string
	name   string
	logger zerolog.Logger

	mu   sync.Mutex
	file *os.File
}

// OpenJournal opens or creates the journal at path. A torn final line is
// truncated so the next entry starts on a clean line.
func OpenJournal[T any](path string) (*Journal[T], error) {
	name := filepath.Base(path)
	logger := log.With().Str("component", "checkpoint").Str("journal", name).Logger()

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", name, err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read journal %s: %w", name, err)
	}

	_, valid, err := decodeLines[T](data)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("journal %s: %w", name, err)
	}

	if valid < int64(len(data)) {
		tornTailsTotal.WithLabelValues(name).Inc()
		logger.Warn().
			Int64("valid_bytes", valid).
			Int("file_bytes", len(data)).
			Msg("Discarding torn journal tail")
		if err := file.Truncate(valid); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate journal %s: %w", name, err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, fmt.Errorf("sync journal %s: %w", name, err)
		}
	}

	if _, err := file.Seek(valid, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek journal %s: %w", name, err)
	}

	return &Journal[T]{path: path, name: name, logger: logger, file: file}, nil
}

// Path returns the journal's file path.
func (j *Journal[T]) Path() string {
	return j.path
}

// Append writes v as one line and fsyncs it.
func (j *Journal[T]) Append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", j.name, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return ErrClosed
	}

	start := time.Now()
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", j.name, err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", j.name, err)
	}

	appendDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
	appendsTotal.WithLabelValues(j.name).Inc()
	return nil
}

// Load returns every complete entry in file order.
func (j *Journal[T]) Load() ([]T, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return loadFile[T](j.path)
}

// Close closes the journal file.
func (j *Journal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// loadFile reads the journal at path without modifying it. A missing file
// is an empty journal.
func loadFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", filepath.Base(path), err)
	}

	items, _, err := decodeLines[T](data)
	if err != nil {
		return nil, fmt.Errorf("journal %s: %w", filepath.Base(path), err)
	}
	return items, nil
}

// decodeLines decodes newline-terminated JSON lines. It returns the entries
// and the length of the valid prefix; a final line without newline or that
// fails to decode is excluded from both.
func decodeLines[T any](data []byte) ([]T, int64, error) {
	var (
		items []T
		off   int
		line  int
	)
	for off < len(data) {
		line++
		n := bytes.IndexByte(data[off:], '\n')
		if n < 0 {
			break
		}
		end := off + n + 1

		raw := bytes.TrimSpace(data[off : end-1])
		if len(raw) == 0 {
			off = end
			continue
		}

		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			if end == len(data) {
				break
			}
			return nil, 0, fmt.Errorf("%w: line %d: %v", ErrCorruptJournal, line, err)
		}
		items = append(items, v)
		off = end
	}
	return items, int64(off), nil
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory and a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}

	// Persist the rename itself; not every platform supports syncing a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
