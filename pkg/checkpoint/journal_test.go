package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func TestJournal_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")

	j, err := OpenJournal[entry](path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(entry{ID: "a", Value: 1}))
	require.NoError(t, j.Append(entry{ID: "b", Value: 2}))

	got, err := j.Load()
	require.NoError(t, err)
	assert.Equal(t, []entry{{"a", 1}, {"b", 2}}, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":\"a\",\"value\":1}\n{\"id\":\"b\",\"value\":2}\n", string(data))
}

func TestJournal_MissingFileIsEmpty(t *testing.T) {
	got, err := loadFile[entry](filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJournal_TornTail(t *testing.T) {
	tests := []struct {
		name string
		tail string
	}{
		{"partial object", `{"id":"c","val`},
		{"complete object without newline", `{"id":"c","value":3}`},
		{"garbage line with newline", "{\"id\":\"c\",\x00\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "torn.jsonl")
			content := "{\"id\":\"a\",\"value\":1}\n{\"id\":\"b\",\"value\":2}\n" + tt.tail
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			// Readers never see the torn line.
			got, err := loadFile[entry](path)
			require.NoError(t, err)
			assert.Equal(t, []entry{{"a", 1}, {"b", 2}}, got)

			// Reopening cuts it off so the next entry starts on a clean line.
			j, err := OpenJournal[entry](path)
			require.NoError(t, err)
			require.NoError(t, j.Append(entry{ID: "d", Value: 4}))
			require.NoError(t, j.Close())

			got, err = loadFile[entry](path)
			require.NoError(t, err)
			assert.Equal(t, []entry{{"a", 1}, {"b", 2}, {"d", 4}}, got)
		})
	}
}

func TestJournal_CorruptMiddleLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.jsonl")
	content := "{\"id\":\"a\",\"value\":1}\nnot json\n{\"id\":\"b\",\"value\":2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := loadFile[entry](path)
	assert.ErrorIs(t, err, ErrCorruptJournal)

	_, err = OpenJournal[entry](path)
	assert.ErrorIs(t, err, ErrCorruptJournal)
}

func TestJournal_BlankLinesIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("\n{\"id\":\"a\",\"value\":1}\n\n"), 0o644))

	got, err := loadFile[entry](path)
	require.NoError(t, err)
	assert.Equal(t, []entry{{"a", 1}}, got)
}

func TestJournal_AppendAfterClose(t *testing.T) {
	j, err := OpenJournal[entry](filepath.Join(t.TempDir(), "closed.jsonl"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(entry{ID: "a"}), ErrClosed)
	assert.NoError(t, j.Close(), "second Close is a no-op")
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, writeFileAtomic(path, []byte("first")))
	require.NoError(t, writeFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
