package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/pagination"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/record"
)

const testVenue = "ICLR.cc/2025/Conference"

func testRecord(id string, number int) record.CollectionRecord {
	return record.CollectionRecord{
		Submission:  record.Submission{ID: id, Number: number, Title: "Paper " + id},
		CollectedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestOpen_CreatesRunMeta(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	s, err := Open(dir, testVenue, "run-1", true)
	require.NoError(t, err)
	defer s.Close()

	meta, err := ReadRunMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, testVenue, meta.Venue)
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, 1, meta.Runs)
	assert.True(t, meta.Decisions)
	assert.Nil(t, meta.CompletedAt)
}

func TestOpen_Resume(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testVenue, "run-1", false)
	require.NoError(t, err)
	require.NoError(t, s.Records.Append(testRecord("a", 1)))
	require.NoError(t, s.Close())

	s, err = Open(dir, testVenue, "run-2", false)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2, s.Meta().Runs)
	assert.Equal(t, "run-2", s.Meta().RunID)

	committed, err := s.Committed()
	require.NoError(t, err)
	assert.Contains(t, committed, "a")
}

func TestOpen_VenueMismatch(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, testVenue, "run-1", false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(dir, "ICLR.cc/2024/Conference", "run-2", false)
	assert.ErrorIs(t, err, ErrVenueMismatch)
}

func TestOpen_RequiresVenue(t *testing.T) {
	_, err := Open(t.TempDir(), "", "run-1", false)
	assert.Error(t, err)
}

func TestStore_Finish(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testVenue, "run-1", false)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Finish("completed"))

	meta, err := ReadRunMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, "completed", meta.Status)
	assert.NotNil(t, meta.CompletedAt)
}

func TestStore_Export(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testVenue, "run-1", true)
	require.NoError(t, err)
	defer s.Close()

	accepted := testRecord("b", 2)
	accepted.Decision = record.DecisionPtr(record.DecisionAcceptOral)
	accepted.Reviews = []record.Review{{ReviewerID: "Reviewer_x", Rating: record.IntPtr(8)}}

	require.NoError(t, s.Records.Append(testRecord("c", 10)))
	require.NoError(t, s.Records.Append(accepted))
	require.NoError(t, s.Records.Append(testRecord("a", 1)))

	path := filepath.Join(dir, ExportFile)
	n, err := s.Export(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &docs))
	require.Len(t, docs, 3)

	assert.Equal(t, "a", docs[0]["submission_id"])
	assert.Equal(t, "b", docs[1]["submission_id"])
	assert.Equal(t, "c", docs[2]["submission_id"])

	assert.Equal(t, "Accept (Oral)", docs[1]["decision"])
	assert.Equal(t, "Accept", docs[1]["decision_type"])
	assert.Nil(t, docs[0]["decision"])
	assert.Nil(t, docs[0]["decision_type"])
	assert.Equal(t, []interface{}{}, docs[0]["reviews"], "reviews serialize as an array")
	assert.NotContains(t, docs[0], "Venue")
}

func TestOrdered(t *testing.T) {
	updated := testRecord("a", 1)
	updated.Title = "Updated"

	got := Ordered([]record.CollectionRecord{
		testRecord("z", 3),
		testRecord("a", 1),
		testRecord("y", 3),
		updated,
	})

	require.Len(t, got, 3)
	assert.Equal(t, "Updated", got[0].Title)
	assert.Equal(t, []string{"a", "y", "z"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	_, err := Inspect(dir)
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	s, err := Open(dir, testVenue, "run-1", false)
	require.NoError(t, err)
	require.NoError(t, s.Records.Append(testRecord("a", 1)))
	require.NoError(t, s.Skipped.Append(record.SkipEntry{SubmissionID: "b", Stage: record.StageFetch, Reason: record.ReasonClientError, StatusCode: 404}))
	require.NoError(t, s.Pages.Append(pagination.Page{
		Next:  "offset:2",
		Items: []json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"id":"b"}`)},
		Total: 2,
	}))
	require.NoError(t, s.Close())

	snap, err := Inspect(dir)
	require.NoError(t, err)
	assert.Equal(t, testVenue, snap.Meta.Venue)
	assert.Len(t, snap.Records, 1)
	assert.Len(t, snap.Skipped, 1)
	require.Len(t, snap.Pages, 1)
	assert.Len(t, snap.Pages[0].Items, 2)
	assert.Equal(t, pagination.Cursor("offset:2"), snap.Pages[0].Next)
}
