// Package record defines the normalized collection records written to the
// checkpoint journal and exported for downstream statistics.
//
// Field names in the JSON tags are the stable output contract: downstream
// extraction scripts depend on them byte-for-byte.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Submission is the immutable metadata of one paper submitted to a venue.
type Submission struct {
	ID          string     `json:"submission_id"`
	Number      int        `json:"submission_number"`
	Title       string     `json:"title"`
	PrimaryArea string     `json:"primary_area"`
	Abstract    string     `json:"abstract"`
	Keywords    []string   `json:"keywords,omitempty"`
	CreatedAt   *time.Time `json:"created_at"`

	// Venue and VenueID carry the raw venue strings the decision is derived
	// from. They are not part of the exported document.
	Venue   string `json:"-"`
	VenueID string `json:"-"`
}

// Review is one reviewer's scores for a submission. Dimension scores and
// timestamps are nil when the note did not carry them.
type Review struct {
	ReviewerID   string     `json:"reviewer_id"`
	Rating       *int       `json:"rating"`
	Confidence   *int       `json:"confidence"`
	Soundness    *int       `json:"soundness"`
	Presentation *int       `json:"presentation"`
	Contribution *int       `json:"contribution"`
	Summary      string     `json:"summary,omitempty"`
	Strengths    string     `json:"strengths,omitempty"`
	Weaknesses   string     `json:"weaknesses,omitempty"`
	Questions    string     `json:"questions,omitempty"`
	CreatedAt    *time.Time `json:"created_at"`
	ModifiedAt   *time.Time `json:"modified_at"`
}

// LastModified returns the review's modification time, falling back to its
// creation time. It is the zero time when neither is known.
func (r Review) LastModified() time.Time {
	switch {
	case r.ModifiedAt != nil:
		return *r.ModifiedAt
	case r.CreatedAt != nil:
		return *r.CreatedAt
	}
	return time.Time{}
}

// CollectionRecord is the aggregate of one submission, its reviews and its
// decision. It is the atomic unit of normalization and checkpointing.
type CollectionRecord struct {
	Submission
	Reviews     []Review  `json:"reviews"`
	Decision    *Decision `json:"decision"`
	CollectedAt time.Time `json:"collected_at"`
}

// MarshalJSON adds the derived decision_type field and keeps reviews an
// array even when empty.
func (r CollectionRecord) MarshalJSON() ([]byte, error) {
	type plain CollectionRecord
	out := struct {
		plain
		DecisionType *DecisionType `json:"decision_type"`
	}{plain: plain(r)}

	if out.Reviews == nil {
		out.Reviews = []Review{}
	}
	if r.Decision != nil {
		dt := r.Decision.Type()
		out.DecisionType = &dt
	}
	return json.Marshal(out)
}

// Ratings returns the ratings present on the record's reviews.
func (r CollectionRecord) Ratings() []int {
	var out []int
	for _, rev := range r.Reviews {
		if rev.Rating != nil {
			out = append(out, *rev.Rating)
		}
	}
	return out
}

// SkipEntry is one line of the durable skip log. Listing entries without
// an id are logged with an empty SubmissionID and, when known, their
// SubmissionNumber.
type SkipEntry struct {
	SubmissionID     string    `json:"submission_id"`
	SubmissionNumber int       `json:"submission_number,omitempty"`
	Stage            string    `json:"stage"`
	Reason           string    `json:"reason"`
	Error            string    `json:"error,omitempty"`
	StatusCode       int       `json:"status_code,omitempty"`
	Committed        bool      `json:"committed"`
	At               time.Time `json:"at"`
}

// Key identifies the skipped submission: its id, else "#<number>", else
// the empty string.
func (e SkipEntry) Key() string {
	if e.SubmissionID == "" && e.SubmissionNumber > 0 {
		return fmt.Sprintf("#%d", e.SubmissionNumber)
	}
	return e.SubmissionID
}

// Retryable reports whether a later run can still collect the skipped
// submission. Entries without an id can never be fetched.
func (e SkipEntry) Retryable() bool {
	return e.SubmissionID != ""
}

// Skip reasons.
const (
	ReasonClientError       = "client_error"
	ReasonRetryExhausted    = "retry_exhausted"
	ReasonMalformedResponse = "malformed_response"
	ReasonMalformedRecord   = "malformed_record"
)

// Skip stages.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
)

// TimePtr returns a pointer to t, or nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
