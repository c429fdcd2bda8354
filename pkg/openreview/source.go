// Package openreview adapts the OpenReview API v2 /notes endpoint to the
// collector: venue submissions as a paginated listing and per-submission
// forums.
package openreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/pagination"
)

// NotesEndpoint is the API path serving notes.
const NotesEndpoint = "/notes"

// DefaultPageSize is the number of submissions requested per page.
const DefaultPageSize = 500

// ErrMalformedResponse is returned when a response body is not a notes
// listing. It is never retried.
var ErrMalformedResponse = errors.New("malformed notes response")

// Caller performs one API call and returns the raw response body.
type Caller interface {
	Call(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// VenueForYear returns the ICLR venue id of year.
func VenueForYear(year int) string {
	return fmt.Sprintf("ICLR.cc/%d/Conference", year)
}

// SubmissionInvitation returns the invitation that submissions of venue are
// posted to.
func SubmissionInvitation(venue string) string {
	return venue + "/-/Submission"
}

// Source lists a venue's submissions and fetches their forums.
type Source struct {
	caller   Caller
	venue    string
	pageSize int
	logger   zerolog.Logger
}

// NewSource creates a source for venue. A non-positive pageSize selects
// DefaultPageSize.
func NewSource(caller Caller, venue string, pageSize int) *Source {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Source{
		caller:   caller,
		venue:    venue,
		pageSize: pageSize,
		logger:   log.With().Str("component", "openreview").Str("venue", venue).Logger(),
	}
}

// Venue returns the venue id the source lists.
func (s *Source) Venue() string {
	return s.venue
}

// FetchPage fetches the submission page at cursor.
func (s *Source) FetchPage(ctx context.Context, cursor pagination.Cursor) (pagination.Page, error) {
	offset, err := DecodeCursor(cursor)
	if err != nil {
		return pagination.Page{}, err
	}

	params := url.Values{
		"invitation": []string{SubmissionInvitation(s.venue)},
		"limit":      []string{strconv.Itoa(s.pageSize)},
		"offset":     []string{strconv.Itoa(offset)},
	}

	body, err := s.caller.Call(ctx, NotesEndpoint, params)
	if err != nil {
		return pagination.Page{}, err
	}

	notes, err := parseNotes(body)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("submissions at offset %d: %w", offset, err)
	}

	total := pagination.TotalUnknown
	if count, err := jsonparser.GetInt(body, "count"); err == nil {
		total = int(count)
	}

	page := pagination.Page{Items: notes, Total: total}
	next := offset + len(notes)
	if len(notes) > 0 && (total == pagination.TotalUnknown || next < total) {
		page.Next = EncodeCursor(next)
	}

	s.logger.Debug().
		Int("offset", offset).
		Int("notes", len(notes)).
		Int("count", total).
		Msg("Fetched submission page")

	return page, nil
}

// FetchForum returns every note of the forum rooted at forumID: the
// submission itself, its reviews, comments and the decision.
func (s *Source) FetchForum(ctx context.Context, forumID string) ([]json.RawMessage, error) {
	body, err := s.caller.Call(ctx, NotesEndpoint, url.Values{"forum": []string{forumID}})
	if err != nil {
		return nil, err
	}

	notes, err := parseNotes(body)
	if err != nil {
		return nil, fmt.Errorf("forum %s: %w", forumID, err)
	}
	return notes, nil
}

// EncodeCursor returns the cursor of the page starting at offset.
func EncodeCursor(offset int) pagination.Cursor {
	return pagination.Cursor("offset:" + strconv.Itoa(offset))
}

// DecodeCursor returns the offset addressed by cursor. The start cursor is
// offset 0.
func DecodeCursor(cursor pagination.Cursor) (int, error) {
	if cursor == pagination.StartCursor {
		return 0, nil
	}
	raw, ok := strings.CutPrefix(string(cursor), "offset:")
	if !ok {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return offset, nil
}

// parseNotes extracts the "notes" array as raw objects.
func parseNotes(body []byte) ([]json.RawMessage, error) {
	raw, dataType, _, err := jsonparser.Get(body, "notes")
	if err != nil || dataType != jsonparser.Array {
		return nil, fmt.Errorf("%w: no notes array", ErrMalformedResponse)
	}

	notes := make([]json.RawMessage, 0)
	var itemErr error
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			itemErr = fmt.Errorf("%w: note of type %s", ErrMalformedResponse, dataType)
			return
		}
		notes = append(notes, append(json.RawMessage(nil), value...))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if itemErr != nil {
		return nil, itemErr
	}
	return notes, nil
}
