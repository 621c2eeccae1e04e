package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/archive"
	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// archiveGroupLayout formats a story's creation day into its archive group key
const archiveGroupLayout = "2006-01-02"

// ArchiveTask moves stories past the retention window to cold storage. Each
// batch is rendered, grouped by UTC creation day, and handed to the sink;
// stories are deleted from primary storage only inside the sink's per-group
// completion callback. A batch that fails to write is simply retried on a
// later pass since the stories remain in place.
type ArchiveTask struct {
	stories    StoryStore
	sink       archive.Sink
	retention  time.Duration
	batchSize  int
	batchPause time.Duration
	logger     *zap.Logger
}

// NewArchiveTask creates the story archive task
func NewArchiveTask(stories StoryStore, sink archive.Sink, cfg *config.TasksConfig) *ArchiveTask {
	return &ArchiveTask{
		stories:    stories,
		sink:       sink,
		retention:  cfg.ArchiveRetention,
		batchSize:  cfg.ArchiveBatchSize,
		batchPause: cfg.ArchiveBatchPause,
		logger:     logging.GetLogger().With(zap.String("component", "archive-task")),
	}
}

// Name implements Task
func (t *ArchiveTask) Name() string { return "story-archive" }

// MinRepetition implements Task
func (t *ArchiveTask) MinRepetition() time.Duration { return 15 * time.Minute }

// ExceptionBackoff implements Task
func (t *ArchiveTask) ExceptionBackoff() time.Duration { return 30 * time.Second }

// RunIteration implements Task
func (t *ArchiveTask) RunIteration(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "tasks.archive")
	defer span.End()

	archived := 0
	for ctx.Err() == nil {
		batch, err := t.stories.FindArchivable(ctx, time.Now().Add(-t.retention), t.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		deleted, err := t.archiveBatch(ctx, batch)
		if err != nil {
			return err
		}
		if deleted == 0 {
			// Nothing left primary storage, so the next query would return
			// the same rows; leave them for a later pass
			break
		}
		// Count rows that actually left primary storage, not batch size:
		// unconfirmed groups stay behind for a later pass
		archived += int(deleted)

		// Space batches out so a deep backlog does not monopolize the store
		sleepUntil(ctx, time.Now().Add(t.batchPause))
	}

	if archived > 0 {
		telemetry.Counter("archive.stories", "Stories moved to cold storage").Add(ctx, int64(archived))
		t.logger.Info("Archive pass complete", zap.Int("archived", archived))
	}
	return nil
}

// archiveBatch renders one batch, writes it through the sink, and deletes each
// group as the sink confirms it. Returns how many rows actually left primary
// storage.
func (t *ArchiveTask) archiveBatch(ctx context.Context, batch []*models.Story) (int64, error) {
	groups := make(map[string][]archive.Document)
	members := make(map[string][]*models.Story)

	for _, story := range batch {
		history, err := t.stories.History(ctx, story)
		if err != nil {
			return 0, err
		}

		communityName := ""
		if story.Community != nil {
			communityName = story.Community.Name
		}

		document, err := archive.RenderStory(story, communityName, history)
		if err != nil {
			return 0, err
		}

		group := story.CreatedAt.UTC().Format(archiveGroupLayout)
		groups[group] = append(groups[group], document)
		members[group] = append(members[group], story)
	}

	var removed int64
	err := t.sink.Write(ctx, groups, func(group string) {
		deleted, err := t.stories.DeleteBatch(ctx, members[group])
		if err != nil {
			// The archive copy exists; the rows will be re-archived and the
			// delete retried on the next pass
			t.logger.Error("Failed to delete archived stories",
				zap.String("group", group), zap.Error(err))
			return
		}
		removed += deleted
		t.logger.Info("Archived story group",
			zap.String("group", group),
			zap.Int64("deleted", deleted))
	})
	return removed, err
}
