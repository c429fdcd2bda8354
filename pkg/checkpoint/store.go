package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/pagination"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

// File names inside an output directory.
const (
	RecordsFile = "records.jsonl"
	SkippedFile = "skipped.jsonl"
	PagesFile   = "pages.jsonl"
	RunFile     = "run.json"
	ExportFile  = "submissions.json"
)

// ErrVenueMismatch is returned when an output directory already holds a
// checkpoint of another venue.
var ErrVenueMismatch = errors.New("checkpoint belongs to a different venue")

// ErrNoCheckpoint is returned by Inspect for a directory without run.json.
var ErrNoCheckpoint = errors.New("no checkpoint")

// RunMeta is the content of run.json.
type RunMeta struct {
	Venue       string     `json:"venue"`
	RunID       string     `json:"run_id"`
	Runs        int        `json:"runs"`
	Decisions   bool       `json:"decisions"`
	Status      string     `json:"status,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store groups the journals of one output directory.
type Store struct {
	dir    string
	meta   RunMeta
	logger zerolog.Logger

	Records *Journal[record.CollectionRecord]
	Skipped *Journal[record.SkipEntry]
	Pages   *Journal[pagination.Page]
}

// Open opens the checkpoint in dir for venue, creating it when absent. A
// directory that holds another venue's checkpoint is refused with
// ErrVenueMismatch. runID identifies this run in run.json.
func Open(dir, venue, runID string, decisions bool) (*Store, error) {
	if venue == "" {
		return nil, fmt.Errorf("venue is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	logger := log.With().Str("component", "checkpoint").Str("dir", dir).Logger()
	now := time.Now().UTC()

	meta, err := ReadRunMeta(dir)
	switch {
	case errors.Is(err, ErrNoCheckpoint):
		meta = RunMeta{Venue: venue, CreatedAt: now}
	case err != nil:
		return nil, err
	case meta.Venue != venue:
		return nil, fmt.Errorf("%w: %s holds %q, requested %q", ErrVenueMismatch, dir, meta.Venue, venue)
	default:
		logger.Info().
			Str("previous_run_id", meta.RunID).
			Int("runs", meta.Runs).
			Msg("Resuming existing checkpoint")
	}

	meta.RunID = runID
	meta.Runs++
	meta.Decisions = decisions
	meta.Status = ""
	meta.UpdatedAt = now
	meta.CompletedAt = nil

	s := &Store{dir: dir, meta: meta, logger: logger}
	if err := s.writeMeta(); err != nil {
		return nil, err
	}

	if s.Records, err = OpenJournal[record.CollectionRecord](filepath.Join(dir, RecordsFile)); err != nil {
		return nil, err
	}
	if s.Skipped, err = OpenJournal[record.SkipEntry](filepath.Join(dir, SkippedFile)); err != nil {
		s.Close()
		return nil, err
	}
	if s.Pages, err = OpenJournal[pagination.Page](filepath.Join(dir, PagesFile)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Meta returns the current run metadata.
func (s *Store) Meta() RunMeta {
	return s.meta
}

// Finish records the final status of the run in run.json.
func (s *Store) Finish(status string) error {
	now := time.Now().UTC()
	s.meta.Status = status
	s.meta.UpdatedAt = now
	if status == "completed" {
		s.meta.CompletedAt = &now
	}
	return s.writeMeta()
}

// Committed returns the ids of every committed record.
func (s *Store) Committed() (map[string]struct{}, error) {
	records, err := s.Records.Load()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.ID] = struct{}{}
	}
	return ids, nil
}

// Export writes the committed records to path as one JSON array ordered by
// submission number, replacing any previous export atomically. It returns
// the number of records written.
func (s *Store) Export(path string) (int, error) {
	records, err := s.Records.Load()
	if err != nil {
		return 0, err
	}

	records = Ordered(records)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Int("records", len(records)).
		Msg("Exported collection")
	return len(records), nil
}

// Close closes the journals.
func (s *Store) Close() error {
	var errs []error
	if s.Records != nil {
		errs = append(errs, s.Records.Close())
	}
	if s.Skipped != nil {
		errs = append(errs, s.Skipped.Close())
	}
	if s.Pages != nil {
		errs = append(errs, s.Pages.Close())
	}
	return errors.Join(errs...)
}

func (s *Store) writeMeta() error {
	data, err := json.MarshalIndent(s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", RunFile, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, RunFile), append(data, '\n'))
}

// ReadRunMeta reads run.json of dir. A directory without one yields
// ErrNoCheckpoint.
func ReadRunMeta(dir string) (RunMeta, error) {
	var meta RunMeta
	data, err := os.ReadFile(filepath.Join(dir, RunFile))
	if errors.Is(err, os.ErrNotExist) {
		return meta, fmt.Errorf("%w in %s", ErrNoCheckpoint, dir)
	}
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", RunFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode %s: %w", RunFile, err)
	}
	return meta, nil
}

// Ordered returns records with duplicate submission ids collapsed (the
// later entry wins), sorted by submission number and then id.
func Ordered(records []record.CollectionRecord) []record.CollectionRecord {
	byID := make(map[string]int, len(records))
	out := make([]record.CollectionRecord, 0, len(records))
	for _, r := range records {
		if i, ok := byID[r.ID]; ok {
			out[i] = r
			continue
		}
		byID[r.ID] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot is a read-only view of a checkpoint directory.
type Snapshot struct {
	Meta    RunMeta
	Records []record.CollectionRecord
	Skipped []record.SkipEntry
	Pages   []pagination.Page
}

// Inspect reads the checkpoint in dir without opening it for writing.
func Inspect(dir string) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Meta, err = ReadRunMeta(dir); err != nil {
		return snap, err
	}
	records, err := loadFile[record.CollectionRecord](filepath.Join(dir, RecordsFile))
	if err != nil {
		return snap, err
	}
	snap.Records = Ordered(records)

	if snap.Skipped, err = loadFile[record.SkipEntry](filepath.Join(dir, SkippedFile)); err != nil {
		return snap, err
	}
	if snap.Pages, err = loadFile[pagination.Page](filepath.Join(dir, PagesFile)); err != nil {
		return snap, err
	}
	return snap, nil
}
