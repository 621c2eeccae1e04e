package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/config"
)

func historyConfig() *config.TasksConfig {
	return &config.TasksConfig{
		HistoryWorkers:     4,
		HistoryMinInterval: 2 * time.Minute,
		HistoryMaxAge:      48 * time.Hour,
	}
}

func TestHistoryUpdatesReturnedAndTouchesMissing(t *testing.T) {
	stories := newFakeStoryStore()
	client := newFakeListingClient()
	stale := time.Now().Add(-time.Hour)

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		_, err := stories.CreateIfAbsent(context.Background(),
			storyFromWire(&reddit.Story{ID: id, Subreddit: "golang"}, 1),
			sampleFromWire(&reddit.Story{ID: id, Score: 1}, stale))
		require.NoError(t, err)
	}

	// The source still knows aaa and bbb; ccc has been deleted upstream
	client.byID["aaa"] = &reddit.Story{ID: "aaa", Score: 40, NumComments: 7}
	client.byID["bbb"] = &reddit.Story{ID: "bbb", Score: 12, NumComments: 2}

	task := NewHistoryTask(stories, client, historyConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	// Returned stories got a fresh sample and snapshot
	updated, err := stories.GetByShortID(context.Background(), "aaa")
	require.NoError(t, err)
	assert.Equal(t, 40, updated.Score)
	assert.Equal(t, 2, stories.historyLen("aaa"))
	assert.Equal(t, 2, stories.historyLen("bbb"))

	// The missing story only had its checked_at advanced
	missing, err := stories.GetByShortID(context.Background(), "ccc")
	require.NoError(t, err)
	assert.Equal(t, 1, stories.historyLen("ccc"))
	assert.True(t, missing.CheckedAt.After(stale))

	// Every candidate advanced, so exactly one bulk call drained the backlog
	assert.Len(t, client.byIDCalls, 1)
}

func TestHistoryChunksLargeBatches(t *testing.T) {
	stories := newFakeStoryStore()
	client := newFakeListingClient()
	stale := time.Now().Add(-time.Hour)

	for i := 0; i < 150; i++ {
		id := fmt.Sprintf("s%03d", i)
		_, err := stories.CreateIfAbsent(context.Background(),
			storyFromWire(&reddit.Story{ID: id, Subreddit: "golang"}, 1),
			sampleFromWire(&reddit.Story{ID: id}, stale))
		require.NoError(t, err)
		client.byID[id] = &reddit.Story{ID: id, Score: i}
	}

	task := NewHistoryTask(stories, client, historyConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	// 150 candidates fan out as one full chunk and one remainder chunk
	require.Len(t, client.byIDCalls, 2)
	sizes := []int{len(client.byIDCalls[0]), len(client.byIDCalls[1])}
	assert.ElementsMatch(t, []int{reddit.MaxItemsPerListingPage, 50}, sizes)

	for i := 0; i < 150; i++ {
		assert.Equal(t, 2, stories.historyLen(fmt.Sprintf("s%03d", i)))
	}
}

func TestHistorySkipsRecentlyChecked(t *testing.T) {
	stories := newFakeStoryStore()
	client := newFakeListingClient()

	_, err := stories.CreateIfAbsent(context.Background(),
		storyFromWire(&reddit.Story{ID: "fresh", Subreddit: "golang"}, 1),
		sampleFromWire(&reddit.Story{ID: "fresh"}, time.Now()))
	require.NoError(t, err)

	task := NewHistoryTask(stories, client, historyConfig())
	require.NoError(t, task.RunIteration(context.Background()))

	assert.Empty(t, client.byIDCalls)
	assert.Equal(t, 1, stories.historyLen("fresh"))
}
