package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/internal/archive"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/config"
)

// recordingSink captures written groups and optionally withholds completion
type recordingSink struct {
	groups       map[string][]archive.Document
	complete     bool
	completeOnly map[string]bool
	err          error
}

func (s *recordingSink) Write(_ context.Context, groups map[string][]archive.Document, onComplete func(string)) error {
	if s.err != nil {
		return s.err
	}
	if s.groups == nil {
		s.groups = make(map[string][]archive.Document)
	}
	for group, documents := range groups {
		s.groups[group] = append(s.groups[group], documents...)
		if s.complete || s.completeOnly[group] {
			onComplete(group)
		}
	}
	return nil
}

func archiveConfig() *config.TasksConfig {
	return &config.TasksConfig{
		ArchiveRetention: 4 * 24 * time.Hour,
		ArchiveBatchSize: 100,
	}
}

func seedAgedStory(t *testing.T, stories *fakeStoryStore, shortID string, createdAt time.Time) {
	t.Helper()
	wire := &reddit.Story{ID: shortID, Subreddit: "golang", Score: 10, CreatedUTC: float64(createdAt.Unix())}
	_, err := stories.CreateIfAbsent(context.Background(),
		storyFromWire(wire, 1), sampleFromWire(wire, createdAt))
	require.NoError(t, err)
}

func TestArchiveDeletesOnlyConfirmedGroups(t *testing.T) {
	stories := newFakeStoryStore()
	sink := &recordingSink{complete: true}
	aged := time.Now().Add(-10 * 24 * time.Hour)

	seedAgedStory(t, stories, "old001", aged)
	seedAgedStory(t, stories, "old002", aged)
	seedAgedStory(t, stories, "new001", time.Now())

	task := NewArchiveTask(stories, sink, archiveConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	// Aged stories were written and removed from primary storage
	group := aged.UTC().Format(archiveGroupLayout)
	require.Contains(t, sink.groups, group)
	assert.Len(t, sink.groups[group], 2)

	gone, err := stories.GetByShortID(context.Background(), "old001")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Stories inside the retention window stay put
	kept, err := stories.GetByShortID(context.Background(), "new001")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestArchiveKeepsStoriesWithoutCompletion(t *testing.T) {
	stories := newFakeStoryStore()
	sink := &recordingSink{complete: false}

	seedAgedStory(t, stories, "old001", time.Now().Add(-10*24*time.Hour))

	task := NewArchiveTask(stories, sink, archiveConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	// No completion callback means no deletion
	kept, err := stories.GetByShortID(context.Background(), "old001")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestArchiveGroupsByCreationDay(t *testing.T) {
	stories := newFakeStoryStore()
	sink := &recordingSink{complete: true}

	dayOne := time.Date(2026, 8, 10, 23, 30, 0, 0, time.UTC)
	dayTwo := time.Date(2026, 8, 11, 0, 30, 0, 0, time.UTC)
	seedAgedStory(t, stories, "old001", dayOne)
	seedAgedStory(t, stories, "old002", dayTwo)

	task := NewArchiveTask(stories, sink, archiveConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	require.Contains(t, sink.groups, "2026-08-10")
	require.Contains(t, sink.groups, "2026-08-11")
	assert.Len(t, sink.groups["2026-08-10"], 1)
	assert.Len(t, sink.groups["2026-08-11"], 1)
}

func TestArchiveBatchCountsOnlyDeletedRows(t *testing.T) {
	stories := newFakeStoryStore()
	confirmed := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	unconfirmed := time.Date(2026, 8, 11, 12, 0, 0, 0, time.UTC)
	seedAgedStory(t, stories, "old001", confirmed)
	seedAgedStory(t, stories, "old002", unconfirmed)

	// Only one group's write is confirmed; the removed count must reflect
	// that group alone
	sink := &recordingSink{completeOnly: map[string]bool{"2026-08-10": true}}
	task := NewArchiveTask(stories, sink, archiveConfig())

	batch, err := stories.FindArchivable(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	removed, err := task.archiveBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	gone, err := stories.GetByShortID(context.Background(), "old001")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := stories.GetByShortID(context.Background(), "old002")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestArchivePropagatesSinkErrors(t *testing.T) {
	stories := newFakeStoryStore()
	sink := &recordingSink{err: fmt.Errorf("bucket unavailable")}

	seedAgedStory(t, stories, "old001", time.Now().Add(-10*24*time.Hour))

	task := NewArchiveTask(stories, sink, archiveConfig())
	require.Error(t, task.RunIteration(context.Background()))

	kept, err := stories.GetByShortID(context.Background(), "old001")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
