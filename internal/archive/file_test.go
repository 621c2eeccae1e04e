package archive

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readArchiveLines decompresses every archive file in a group directory and
// returns the concatenated document lines
func readArchiveLines(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var lines []string
	for _, entry := range entries {
		file, err := os.Open(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		gz, err := gzip.NewReader(file)
		require.NoError(t, err)

		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 1<<20), 1<<20)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.NoError(t, scanner.Err())
		require.NoError(t, gz.Close())
		require.NoError(t, file.Close())
	}
	return lines
}

func TestFileSinkWritesGroups(t *testing.T) {
	root := t.TempDir()
	sink, err := NewFileSink(root)
	require.NoError(t, err)

	groups := map[string][]Document{
		"2026-08-20": {
			{StoryID: 1, ShortID: "aaa", JSON: []byte(`{"id":"aaa"}`)},
			{StoryID: 2, ShortID: "bbb", JSON: []byte(`{"id":"bbb"}`)},
		},
		"2026-08-21": {
			{StoryID: 3, ShortID: "ccc", JSON: []byte(`{"id":"ccc"}`)},
		},
	}

	var completed []string
	err = sink.Write(context.Background(), groups, func(group string) {
		completed = append(completed, group)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2026-08-20", "2026-08-21"}, completed)

	lines := readArchiveLines(t, filepath.Join(root, "2026-08-20"))
	assert.ElementsMatch(t, []string{`{"id":"aaa"}`, `{"id":"bbb"}`}, lines)

	lines = readArchiveLines(t, filepath.Join(root, "2026-08-21"))
	assert.Equal(t, []string{`{"id":"ccc"}`}, lines)
}

func TestFileSinkRequiresRoot(t *testing.T) {
	_, err := NewFileSink("")
	require.Error(t, err)
}

func TestFileSinkStopsOnCancelledContext(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	completed := false
	err = sink.Write(ctx, map[string][]Document{
		"2026-08-20": {{ShortID: "aaa", JSON: []byte(`{}`)}},
	}, func(string) { completed = true })
	require.Error(t, err)
	assert.False(t, completed)
}
