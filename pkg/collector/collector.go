// Package collector orchestrates a collection run: it enumerates a venue's
// submissions, fetches and normalizes each one and commits the resulting
// records to the checkpoint, resuming from whatever a previous run left
// behind.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/checkpoint"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/client"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/normalize"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/openreview"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/pagination"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/retry"
)

// Prometheus metrics for collection runs.
var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_submissions_total",
		Help: "Total submissions processed by outcome (committed, skipped)",
	}, []string{"outcome"})

	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_collector_skips_total",
		Help: "Total skip entries by stage and reason",
	}, []string{"stage", "reason"})

	reviewsCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_collector_reviews_collected_total",
		Help: "Total reviews carried by committed records",
	})

	pendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "review_collector_pending_submissions",
		Help: "Submissions enumerated but not yet committed",
	})

	submissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_collector_submission_duration_seconds",
		Help:    "Time to fetch, normalize and commit one submission",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	})
)

// ErrCancelled is returned when the run's context ends. The checkpoint is
// intact and the run can be resumed.
var ErrCancelled = errors.New("collection cancelled")

// Defaults for Options.
const (
	DefaultProgressEvery          = 25
	DefaultMaxConsecutiveFailures = 5
)

// Source lists a venue's submissions and fetches a submission's forum.
type Source interface {
	pagination.PageFetcher
	FetchForum(ctx context.Context, submissionID string) ([]json.RawMessage, error)
}

// Options configures a run.
type Options struct {
	// Venue is the OpenReview venue id, e.g. "ICLR.cc/2025/Conference".
	Venue string

	// OutputDir holds the checkpoint and the exported document.
	OutputDir string

	// CollectDecisions enables decision resolution.
	CollectDecisions bool

	// PageSize is the number of submissions per listing page.
	PageSize int

	// ProgressEvery logs progress after that many submissions.
	ProgressEvery int

	// MaxConsecutiveFailures aborts the run after that many submissions in
	// a row exhausted their retries.
	MaxConsecutiveFailures int

	// Retry is the retry budget for every remote call.
	Retry retry.Config

	// RunID identifies the run; generated when empty.
	RunID string

	// FieldTable overrides the normalizer's field table.
	FieldTable *normalize.FieldTable
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID      string
	Venue      string
	Status     Status
	Enumerated int

	// Committed counts every committed record in the checkpoint;
	// CommittedThisRun only those committed by this run.
	Committed        int
	CommittedThisRun int

	Skipped         int
	SkippedByReason map[string]int
	Remaining       int
	Reviews         int
	Retries         int
	Elapsed         time.Duration
	ExportPath      string
}

// Collector runs a collection.
type Collector struct {
	source     Source
	opts       Options
	policy     *retry.Policy
	normalizer *normalize.Normalizer
	state      *RunState
	logger     zerolog.Logger
}

// Option customizes a Collector.
type Option func(*collectorConfig)

type collectorConfig struct {
	retryOpts []retry.Option
}

// WithRetryOptions passes extra options to the retry policy, such as a
// test sleeper.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *collectorConfig) { c.retryOpts = append(c.retryOpts, opts...) }
}

// New creates a collector reading from source.
func New(source Source, opts Options, options ...Option) (*Collector, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.Venue == "" {
		return nil, fmt.Errorf("venue is required")
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	var cfg collectorConfig
	for _, o := range options {
		o(&cfg)
	}

	logger := log.With().
		Str("component", "collector").
		Str("run_id", opts.RunID).
		Str("venue", opts.Venue).
		Logger()

	c := &Collector{
		source: source,
		opts:   opts,
		state:  newRunState(),
		logger: logger,
	}

	retryOpts := append([]retry.Option{retry.WithObserver(c.onRetry)}, cfg.retryOpts...)
	c.policy = retry.New(opts.Retry, retryOpts...)

	normOpts := []normalize.Option{
		normalize.WithDecisions(opts.CollectDecisions),
		normalize.WithVenue(opts.Venue),
	}
	if opts.FieldTable != nil {
		normOpts = append(normOpts, normalize.WithFieldTable(*opts.FieldTable))
	}
	c.normalizer = normalize.New(normOpts...)

	return c, nil
}

// NewWithCaller creates a collector over the OpenReview notes API reached
// through caller.
func NewWithCaller(caller openreview.Caller, opts Options, options ...Option) (*Collector, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	return New(openreview.NewSource(caller, opts.Venue, opts.PageSize), opts, options...)
}

// State returns the run's live state.
func (c *Collector) State() *RunState {
	return c.state
}

// ExportPath returns where the final document is written.
func (c *Collector) ExportPath() string {
	return filepath.Join(c.opts.OutputDir, checkpoint.ExportFile)
}

// Run executes the collection. It returns ErrCancelled when ctx ends and an
// error matching retry.ErrFatal when the run had to be aborted; in both
// cases everything committed so far stays in the checkpoint.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:           c.opts.RunID,
		Venue:           c.opts.Venue,
		SkippedByReason: make(map[string]int),
	}

	store, err := checkpoint.Open(c.opts.OutputDir, c.opts.Venue, c.opts.RunID, c.opts.CollectDecisions)
	if err != nil {
		c.state.setStatus(StatusFailed)
		summary.Status = StatusFailed
		return summary, fmt.Errorf("open checkpoint: %w", err)
	}
	defer store.Close()

	c.logger.Info().
		Str("output_dir", c.opts.OutputDir).
		Bool("decisions", c.opts.CollectDecisions).
		Msg("Starting collection run")

	err = c.run(ctx, store, &summary)

	snap := c.state.Snapshot()
	summary.Status = snap.Status
	summary.Enumerated = snap.Enumerated
	summary.Committed = snap.Committed
	summary.Remaining = snap.Pending
	summary.Retries = snap.Retries
	summary.Elapsed = time.Since(start)
	pendingGauge.Set(float64(snap.Pending))

	if finishErr := store.Finish(string(snap.Status)); finishErr != nil {
		c.logger.Warn().Err(finishErr).Msg("Failed to record run status")
	}

	event := c.logger.Info()
	if err != nil {
		event = c.logger.Error().Err(err)
	}
	event.
		Str("status", string(summary.Status)).
		Int("committed", summary.Committed).
		Int("committed_this_run", summary.CommittedThisRun).
		Int("skipped", summary.Skipped).
		Int("remaining", summary.Remaining).
		Dur("elapsed", summary.Elapsed).
		Msg("Collection run finished")

	return summary, err
}

func (c *Collector) run(ctx context.Context, store *checkpoint.Store, summary *Summary) error {
	committed, err := store.Committed()
	if err != nil {
		return c.fail(retry.Fatal("load checkpoint", err))
	}

	c.state.setStatus(StatusEnumerating)
	listing, err := c.enumerate(ctx, store, summary)
	if err != nil {
		return c.abort(ctx, err)
	}

	ids := make([]string, 0, len(listing))
	items := make(map[string]json.RawMessage, len(listing))
	for _, item := range listing {
		id, err := normalize.SubmissionID(item)
		if err != nil {
			// Logged to the skip log when its page was recorded.
			continue
		}
		if _, dup := items[id]; dup {
			continue
		}
		items[id] = item
		ids = append(ids, id)
	}

	c.state.begin(ids, committed)
	pending := c.state.pendingIDs()
	pendingGauge.Set(float64(len(pending)))

	c.logger.Info().
		Int("enumerated", len(ids)).
		Int("already_committed", len(ids)-len(pending)).
		Int("pending", len(pending)).
		Msg("Resume set computed")

	for i, id := range pending {
		if err := ctx.Err(); err != nil {
			return c.cancel(err)
		}

		if err := c.process(ctx, store, id, items[id], summary); err != nil {
			return c.abort(ctx, err)
		}
		pendingGauge.Set(float64(c.state.Snapshot().Pending))

		if done := i + 1; done%c.opts.ProgressEvery == 0 || done == len(pending) {
			snap := c.state.Snapshot()
			c.logger.Info().
				Int("processed", done).
				Int("of", len(pending)).
				Int("committed", snap.Committed).
				Int("skipped", summary.Skipped).
				Msg("Collection progress")
		}
	}

	summary.ExportPath = c.ExportPath()
	if _, err := store.Export(summary.ExportPath); err != nil {
		return c.fail(retry.Fatal("export", err))
	}

	c.state.setStatus(StatusCompleted)
	return nil
}

// enumerate returns the raw listing entries: the pages recorded by earlier
// runs followed by any pages still missing, each recorded before use.
// Entries without an id are logged as skips when their page is recorded.
func (c *Collector) enumerate(ctx context.Context, store *checkpoint.Store, summary *Summary) ([]json.RawMessage, error) {
	recorded, err := store.Pages.Load()
	if err != nil {
		return nil, retry.Fatal("load pages", err)
	}

	var items []json.RawMessage
	cursor := pagination.StartCursor
	for _, page := range recorded {
		items = append(items, page.Items...)
	}
	if n := len(recorded); n > 0 {
		last := recorded[n-1]
		if last.Last() {
			c.logger.Info().
				Int("pages", n).
				Int("items", len(items)).
				Msg("Listing replayed from checkpoint")
			return items, nil
		}
		cursor = last.Next
		c.logger.Info().
			Int("pages", n).
			Str("cursor", string(cursor)).
			Msg("Resuming listing")
	}

	closed := false
	p := pagination.New(c.source, c.policy, cursor)
	err = p.Collect(ctx, func(page pagination.Page) error {
		if err := c.skipUnidentified(store, summary, page.Items); err != nil {
			return err
		}
		if err := store.Pages.Append(page); err != nil {
			return retry.Fatal("record page", err)
		}
		items = append(items, page.Items...)
		closed = page.Last()
		c.state.setStatus(StatusEnumerating)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The listing ended on an empty page. Record it so later runs replay
	// the listing without another request.
	if !closed {
		end := pagination.Page{Cursor: p.Cursor(), Total: pagination.TotalUnknown}
		if err := store.Pages.Append(end); err != nil {
			return nil, retry.Fatal("record page", err)
		}
	}
	return items, nil
}

// skipUnidentified logs every listing entry without an id as a malformed
// record. Such entries can never be fetched or committed.
func (c *Collector) skipUnidentified(store *checkpoint.Store, summary *Summary, items []json.RawMessage) error {
	for _, item := range items {
		_, err := normalize.SubmissionID(item)
		if err == nil {
			continue
		}
		entry := record.SkipEntry{
			SubmissionNumber: normalize.SubmissionNumber(item),
			Stage:            record.StageNormalize,
			Reason:           record.ReasonMalformedRecord,
			Error:            err.Error(),
		}
		if err := c.recordSkip(store, summary, entry); err != nil {
			return err
		}
		c.logger.Warn().
			Int("submission_number", entry.SubmissionNumber).
			Str("error", entry.Error).
			Msg("Listing entry without id - skipped")
	}
	return nil
}

// process moves one submission through fetching, normalizing and
// committing. Per-submission failures become skip entries; only errors that
// must stop the run are returned.
func (c *Collector) process(ctx context.Context, store *checkpoint.Store, id string, listed json.RawMessage, summary *Summary) error {
	start := time.Now()
	logger := c.logger.With().Str("submission_id", id).Logger()
	c.state.start(id)

	c.state.setStatus(StatusFetching)
	notes, err := retry.Do(ctx, c.policy, "forum", func(ctx context.Context) ([]json.RawMessage, error) {
		return c.source.FetchForum(ctx, id)
	})

	var unavailable *record.SkipEntry
	switch {
	case err == nil:
		c.state.success()

	case ctx.Err() != nil || errors.Is(err, retry.ErrCancelled):
		return err

	case client.IsClientError(err):
		// The server answered; the submission is gone or hidden. Its
		// listing metadata is still committed, without reviews.
		c.state.success()
		unavailable = &record.SkipEntry{
			SubmissionID: id,
			Stage:        record.StageFetch,
			Reason:       record.ReasonClientError,
			Error:        err.Error(),
			StatusCode:   client.StatusCode(err),
			Committed:    true,
		}
		logger.Warn().Err(err).Int("status", client.StatusCode(err)).Msg("Forum unavailable - committing without reviews")

	default:
		reason := record.ReasonRetryExhausted
		if errors.Is(err, openreview.ErrMalformedResponse) {
			reason = record.ReasonMalformedResponse
		}
		if skipErr := c.recordSkip(store, summary, record.SkipEntry{
			SubmissionID: id,
			Stage:        record.StageFetch,
			Reason:       reason,
			Error:        err.Error(),
			StatusCode:   client.StatusCode(err),
		}); skipErr != nil {
			return skipErr
		}
		c.state.finish(id, false)

		n := c.state.failure()
		logger.Error().Err(err).Int("consecutive_failures", n).Msg("Submission failed - left for the next run")
		if n >= c.opts.MaxConsecutiveFailures {
			return retry.Fatal("forum fetch", fmt.Errorf("%d consecutive submissions failed: %w", n, err))
		}
		return nil
	}

	c.state.setStatus(StatusNormalizing)
	submission := listed
	var reviews []json.RawMessage
	var decision json.RawMessage
	if unavailable == nil {
		reviews, decision = c.normalizer.SplitForum(id, notes)
		if fresh := forumSubmission(id, notes); fresh != nil {
			submission = fresh
		}
	}

	rec, err := c.normalizer.Normalize(submission, reviews, decision)
	if err != nil {
		if skipErr := c.recordSkip(store, summary, record.SkipEntry{
			SubmissionID: id,
			Stage:        record.StageNormalize,
			Reason:       record.ReasonMalformedRecord,
			Error:        err.Error(),
		}); skipErr != nil {
			return skipErr
		}
		c.state.finish(id, false)
		logger.Warn().Err(err).Msg("Submission not normalizable - skipped")
		return nil
	}

	c.state.setStatus(StatusCommitting)
	if err := store.Records.Append(rec); err != nil {
		return retry.Fatal("commit record", err)
	}
	c.state.finish(id, true)

	// The skip entry claims the commit, so it follows the record.
	if unavailable != nil {
		if err := c.recordSkip(store, summary, *unavailable); err != nil {
			return err
		}
	}

	summary.CommittedThisRun++
	summary.Reviews += len(rec.Reviews)
	submissionsTotal.WithLabelValues("committed").Inc()
	reviewsCollected.Add(float64(len(rec.Reviews)))
	submissionDuration.Observe(time.Since(start).Seconds())

	logger.Debug().
		Int("reviews", len(rec.Reviews)).
		Bool("decided", rec.Decision != nil).
		Msg("Record committed")
	return nil
}

func (c *Collector) recordSkip(store *checkpoint.Store, summary *Summary, entry record.SkipEntry) error {
	entry.At = time.Now().UTC()
	if err := store.Skipped.Append(entry); err != nil {
		return retry.Fatal("record skip", err)
	}

	c.state.skip(entry.Key(), entry.Reason)
	summary.Skipped++
	summary.SkippedByReason[entry.Reason]++
	skipsTotal.WithLabelValues(entry.Stage, entry.Reason).Inc()
	if !entry.Committed {
		submissionsTotal.WithLabelValues("skipped").Inc()
	}
	return nil
}

// onRetry is the retry policy's observer. Retries during enumeration are
// counted under the empty id.
func (c *Collector) onRetry(_ retry.Event) {
	c.state.setStatus(StatusRetrying)
	c.state.retried(c.state.Snapshot().Current)
}

// abort classifies an error that stops the run.
func (c *Collector) abort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, retry.ErrCancelled) {
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		return c.cancel(ctxErr)
	}
	return c.fail(err)
}

func (c *Collector) cancel(cause error) error {
	c.state.setStatus(StatusCancelled)
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func (c *Collector) fail(err error) error {
	c.state.setStatus(StatusFailed)
	return retry.Fatal("collection", err)
}

// forumSubmission returns the submission note from a forum listing. It is
// fresher than the listing entry: venue fields change when decisions are
// published.
func forumSubmission(id string, notes []json.RawMessage) json.RawMessage {
	for _, note := range notes {
		if noteID, err := normalize.SubmissionID(note); err == nil && noteID == id {
			return note
		}
	}
	return nil
}
