package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// HistoryTask re-polls tracked stories to grow their popularity history.
// Candidates are the hottest stories that have not been checked recently and
// are still young enough to matter; they are fetched in bulk chunks, one
// worker goroutine per chunk, until the backlog drains.
type HistoryTask struct {
	stories     StoryStore
	client      ListingClient
	workers     int
	minInterval time.Duration
	maxAge      time.Duration
	logger      *zap.Logger
}

// NewHistoryTask creates the story history update task
func NewHistoryTask(stories StoryStore, client ListingClient, cfg *config.TasksConfig) *HistoryTask {
	return &HistoryTask{
		stories:     stories,
		client:      client,
		workers:     cfg.HistoryWorkers,
		minInterval: cfg.HistoryMinInterval,
		maxAge:      cfg.HistoryMaxAge,
		logger:      logging.GetLogger().With(zap.String("component", "history-task")),
	}
}

// Name implements Task
func (t *HistoryTask) Name() string { return "story-history" }

// MinRepetition implements Task
func (t *HistoryTask) MinRepetition() time.Duration { return 10 * time.Second }

// ExceptionBackoff returns a negative duration: a failed pass leaves
// checked_at untouched for the affected stories, so the normal schedule
// already retries them without extra delay
func (t *HistoryTask) ExceptionBackoff() time.Duration { return -1 }

// RunIteration implements Task
func (t *HistoryTask) RunIteration(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "tasks.history")
	defer span.End()

	updated := 0
	for ctx.Err() == nil {
		now := time.Now()
		candidates, err := t.stories.FindNeedingUpdate(ctx,
			now.Add(-t.maxAge),
			now.Add(-t.minInterval),
			t.workers*reddit.MaxItemsPerListingPage)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			break
		}

		processed, failed := t.updateBatch(ctx, candidates)
		updated += processed
		if failed {
			// A failed chunk's stories stay eligible; bail out of the drain
			// loop instead of re-fetching them immediately
			break
		}
	}

	if updated > 0 {
		telemetry.Counter("history.samples", "Story history samples recorded").Add(ctx, int64(updated))
		t.logger.Info("History pass complete", zap.Int("updated", updated))
	}
	return nil
}

// updateBatch fans the candidates out in bulk-request-sized chunks and joins
// the workers before returning. Chunk failures are isolated: the other chunks
// still land their samples.
func (t *HistoryTask) updateBatch(ctx context.Context, candidates []*models.Story) (int, bool) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	failed := false

	for start := 0; start < len(candidates); start += reddit.MaxItemsPerListingPage {
		end := start + reddit.MaxItemsPerListingPage
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]

		wg.Add(1)
		go func(chunk []*models.Story) {
			defer wg.Done()
			count, err := t.updateChunk(ctx, chunk)
			mu.Lock()
			processed += count
			if err != nil {
				failed = true
			}
			mu.Unlock()
			if err != nil {
				t.logger.Error("History chunk failed",
					zap.Int("stories", len(chunk)), zap.Error(err))
			}
		}(chunk)
	}

	wg.Wait()
	return processed, failed
}

// updateChunk polls one chunk in a single bulk request. Stories the source
// still returns get a fresh history sample; the rest get their checked_at
// advanced so they are not re-polled immediately.
func (t *HistoryTask) updateChunk(ctx context.Context, chunk []*models.Story) (int, error) {
	ids := make([]string, 0, len(chunk))
	for _, story := range chunk {
		ids = append(ids, story.RedditShortID)
	}

	current, err := t.client.StoriesByID(ctx, ids)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	sampled := 0
	for _, story := range chunk {
		wire, ok := current[story.RedditShortID]
		if !ok {
			if _, err := t.stories.TouchChecked(ctx, story, now); err != nil {
				return sampled, err
			}
			continue
		}
		if _, err := t.stories.AppendHistory(ctx, story, sampleFromWire(wire, now)); err != nil {
			return sampled, err
		}
		sampled++
	}
	return sampled, nil
}
