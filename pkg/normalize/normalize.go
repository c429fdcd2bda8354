// Package normalize turns raw OpenReview notes into collection records.
//
// Review forms differ across venues and years. Each logical field is
// resolved from a FieldTable of prioritized path candidates; the first
// candidate present wins and a field with no match is absent, not an error.
// Only a submission without an id is rejected.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

// ErrMalformedRecord is returned when a submission lacks the structurally
// required id or is not a JSON object.
var ErrMalformedRecord = errors.New("malformed record")

// Normalizer converts raw notes into records.
type Normalizer struct {
	fields    FieldTable
	decisions bool
	venue     string
	now       func() time.Time
	logger    zerolog.Logger
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithFieldTable replaces DefaultFields.
func WithFieldTable(t FieldTable) Option {
	return func(n *Normalizer) { n.fields = t }
}

// WithDecisions enables decision resolution. Without it every record's
// decision is nil.
func WithDecisions(enabled bool) Option {
	return func(n *Normalizer) { n.decisions = enabled }
}

// WithVenue sets the venue id used for the conference label when a
// submission carries no venueid of its own.
func WithVenue(venue string) Option {
	return func(n *Normalizer) { n.venue = venue }
}

// WithClock replaces time.Now for CollectedAt.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		fields: DefaultFields,
		now:    time.Now,
		logger: log.With().Str("component", "normalizer").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FieldTable returns the table in use.
func (n *Normalizer) FieldTable() FieldTable {
	return n.fields
}

// Normalize builds the record of one submission from its raw note, its raw
// review notes and its raw decision note (nil when none). Reviews are
// deduplicated by reviewer, the most recently modified one winning, and
// sorted by reviewer id.
func (n *Normalizer) Normalize(rawSubmission json.RawMessage, rawReviews []json.RawMessage, rawDecision json.RawMessage) (record.CollectionRecord, error) {
	sub, err := n.submission(rawSubmission)
	if err != nil {
		return record.CollectionRecord{}, err
	}

	rec := record.CollectionRecord{
		Submission:  sub,
		Reviews:     n.reviews(sub.ID, rawReviews),
		CollectedAt: n.now().UTC(),
	}

	if n.decisions {
		rec.Decision = n.decision(sub, rawDecision)
	}
	return rec, nil
}

// SubmissionID returns the id of a raw submission note.
func SubmissionID(raw json.RawMessage) (string, error) {
	id, err := jsonparser.GetString(raw, "id")
	if err != nil || strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: submission without id", ErrMalformedRecord)
	}
	return id, nil
}

// SubmissionNumber returns the number of a raw submission note, or 0 when
// it carries none.
func SubmissionNumber(raw json.RawMessage) int {
	v, typ, _, err := jsonparser.Get(raw, "number")
	if err != nil || (typ != jsonparser.Number && typ != jsonparser.String) {
		return 0
	}
	if num, err := strconv.Atoi(strings.TrimSpace(string(v))); err == nil && num > 0 {
		return num
	}
	return 0
}

func (n *Normalizer) submission(raw json.RawMessage) (record.Submission, error) {
	if _, typ, _, err := jsonparser.Get(raw); err != nil || typ != jsonparser.Object {
		return record.Submission{}, fmt.Errorf("%w: submission is not an object", ErrMalformedRecord)
	}

	id, err := SubmissionID(raw)
	if err != nil {
		return record.Submission{}, err
	}

	sub := record.Submission{
		ID:          id,
		Title:       n.stringField(raw, FieldTitle),
		Abstract:    n.stringField(raw, FieldAbstract),
		PrimaryArea: n.stringField(raw, FieldPrimaryArea),
		Keywords:    n.listField(raw, FieldKeywords),
		CreatedAt:   record.TimePtr(n.timeField(raw, FieldCreated)),
		Venue:       n.stringField(raw, FieldVenue),
		VenueID:     n.stringField(raw, FieldVenueID),
	}
	if num := n.intField(raw, FieldNumber); num != nil {
		sub.Number = *num
	}
	return sub, nil
}

func (n *Normalizer) review(raw json.RawMessage) record.Review {
	rev := record.Review{
		ReviewerID:   reviewerID(n.stringField(raw, FieldReviewer)),
		Rating:       n.intField(raw, FieldRating),
		Confidence:   n.intField(raw, FieldConfidence),
		Soundness:    n.intField(raw, FieldSoundness),
		Presentation: n.intField(raw, FieldPresentation),
		Contribution: n.intField(raw, FieldContribution),
		Summary:      n.stringField(raw, FieldSummary),
		Strengths:    n.stringField(raw, FieldStrengths),
		Weaknesses:   n.stringField(raw, FieldWeaknesses),
		Questions:    n.stringField(raw, FieldQuestions),
		CreatedAt:    record.TimePtr(n.timeField(raw, FieldCreated)),
		ModifiedAt:   record.TimePtr(n.timeField(raw, FieldModified)),
	}
	if rev.ReviewerID == "" {
		rev.ReviewerID, _ = jsonparser.GetString(raw, "id")
	}
	if rev.ModifiedAt == nil {
		rev.ModifiedAt = rev.CreatedAt
	}
	return rev
}

func (n *Normalizer) reviews(submissionID string, raws []json.RawMessage) []record.Review {
	latest := make(map[string]record.Review, len(raws))
	for _, raw := range raws {
		if _, typ, _, err := jsonparser.Get(raw); err != nil || typ != jsonparser.Object {
			n.logger.Warn().
				Str("submission_id", submissionID).
				Msg("Ignoring review that is not a JSON object")
			continue
		}

		rev := n.review(raw)
		if rev.ReviewerID == "" {
			n.logger.Warn().
				Str("submission_id", submissionID).
				Msg("Ignoring review without reviewer or note id")
			continue
		}

		// Later modification wins; equal times keep the later input.
		if prev, ok := latest[rev.ReviewerID]; ok && prev.LastModified().After(rev.LastModified()) {
			continue
		}
		latest[rev.ReviewerID] = rev
	}

	out := make([]record.Review, 0, len(latest))
	for _, rev := range latest {
		out = append(out, rev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewerID < out[j].ReviewerID })
	return out
}

func (n *Normalizer) decision(sub record.Submission, rawDecision json.RawMessage) *record.Decision {
	if len(rawDecision) > 0 {
		if d := ParseDecision(n.stringField(rawDecision, FieldDecision)); d != nil {
			return d
		}
	}

	venueID := sub.VenueID
	if venueID == "" {
		venueID = n.venue
	}
	return DecisionFromVenue(sub.Venue, sub.VenueID, VenueLabel(venueID))
}

// reviewerID reduces a signature group such as
// "ICLR.cc/2025/Conference/Submission12/Reviewer_abCd" to its last segment.
func reviewerID(signature string) string {
	if i := strings.LastIndex(signature, "/"); i >= 0 {
		return signature[i+1:]
	}
	return signature
}
