package openreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yubol-bobo/Smart-AI-Conference/internal/testutil"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/client"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/pagination"
)

const testVenue = "ICLR.cc/2025/Conference"

func newMockSource(t *testing.T, pageSize int) (*testutil.MockOpenReview, *Source) {
	t.Helper()

	mock := testutil.NewMockOpenReview()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.MinInterval = 0
	cfg.Timeout = 2 * time.Second
	c, err := client.New(cfg)
	require.NoError(t, err)

	return mock, NewSource(c, testVenue, pageSize)
}

func submissions(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = testutil.SubmissionNote(testVenue, fmt.Sprintf("sub%d", i+1), i+1, fmt.Sprintf("Paper %d", i+1), "")
	}
	return out
}

func TestVenueForYear(t *testing.T) {
	assert.Equal(t, "ICLR.cc/2025/Conference", VenueForYear(2025))
	assert.Equal(t, "ICLR.cc/2024/Conference/-/Submission", SubmissionInvitation(VenueForYear(2024)))
}

func TestCursorRoundTrip(t *testing.T) {
	tests := []struct {
		cursor  pagination.Cursor
		offset  int
		wantErr bool
	}{
		{pagination.StartCursor, 0, false},
		{"offset:0", 0, false},
		{"offset:500", 500, false},
		{"page:2", 0, true},
		{"offset:-1", 0, true},
		{"offset:abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.cursor), func(t *testing.T) {
			got, err := DecodeCursor(tt.cursor)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.offset, got)
		})
	}

	assert.Equal(t, pagination.Cursor("offset:1000"), EncodeCursor(1000))
}

func TestFetchPage_WithCount(t *testing.T) {
	mock, src := newMockSource(t, 2)
	mock.SetSubmissions(submissions(3)...)
	ctx := context.Background()

	first, err := src.FetchPage(ctx, pagination.StartCursor)
	require.NoError(t, err)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, 3, first.Total)
	assert.Equal(t, pagination.Cursor("offset:2"), first.Next)

	second, err := src.FetchPage(ctx, first.Next)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.Empty(t, second.Next, "count reached, listing complete")
	assert.True(t, second.Last())

	assert.Equal(t, 1, mock.Requests(testutil.PageKey(0)))
	assert.Equal(t, 1, mock.Requests(testutil.PageKey(2)))
}

func TestFetchPage_WithoutCount(t *testing.T) {
	mock, src := newMockSource(t, 2)
	mock.SetSubmissions(submissions(3)...)
	mock.OmitCount(true)

	ctx := context.Background()
	cursor := pagination.StartCursor
	var total int
	for i := 0; i < 5; i++ {
		page, err := src.FetchPage(ctx, cursor)
		require.NoError(t, err)
		assert.Equal(t, pagination.TotalUnknown, page.Total)
		total += len(page.Items)
		if page.Last() {
			break
		}
		cursor = page.Next
	}

	assert.Equal(t, 3, total)
	assert.Equal(t, 1, mock.Requests(testutil.PageKey(3)), "without count only an empty page ends the listing")
}

func TestFetchPage_Malformed(t *testing.T) {
	mock, src := newMockSource(t, 2)
	mock.Script(testutil.PageKey(0), testutil.MockResponse{StatusCode: 200, Body: `{"unexpected":true}`})

	_, err := src.FetchPage(context.Background(), pagination.StartCursor)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchPage_InvalidCursor(t *testing.T) {
	mock, src := newMockSource(t, 2)

	_, err := src.FetchPage(context.Background(), "bogus")
	assert.Error(t, err)
	assert.Zero(t, mock.GetRequestCount())
}

func TestFetchForum(t *testing.T) {
	mock, src := newMockSource(t, 2)
	mock.SetForum("sub1",
		testutil.SubmissionNote(testVenue, "sub1", 1, "Paper 1", ""),
		testutil.ReviewNote(testVenue, "sub1", 1, "r1", "aaaa", 6, 4, 1730000000000),
	)

	notes, err := src.FetchForum(context.Background(), "sub1")
	require.NoError(t, err)
	assert.Len(t, notes, 2)
	assert.JSONEq(t, string(testutil.SubmissionNote(testVenue, "sub1", 1, "Paper 1", "")), string(notes[0]))
}

func TestFetchForum_NotFound(t *testing.T) {
	_, src := newMockSource(t, 2)

	_, err := src.FetchForum(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, client.IsClientError(err))

	var se *client.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.StatusCode)
}
