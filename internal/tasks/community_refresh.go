package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// CommunityRefreshTask re-polls tracked communities for activity samples
// (subscribers, active users). Communities that have gone private are skipped
// rather than failing the pass.
type CommunityRefreshTask struct {
	communities    CommunityStore
	client         ListingClient
	updateInterval time.Duration
	logger         *zap.Logger
}

// NewCommunityRefreshTask creates the community refresh task
func NewCommunityRefreshTask(communities CommunityStore, client ListingClient, cfg *config.TasksConfig) *CommunityRefreshTask {
	return &CommunityRefreshTask{
		communities:    communities,
		client:         client,
		updateInterval: cfg.CommunityUpdateInterval,
		logger:         logging.GetLogger().With(zap.String("component", "community-refresh-task")),
	}
}

// Name implements Task
func (t *CommunityRefreshTask) Name() string { return "community-refresh" }

// MinRepetition implements Task
func (t *CommunityRefreshTask) MinRepetition() time.Duration { return 30 * time.Minute }

// ExceptionBackoff implements Task
func (t *CommunityRefreshTask) ExceptionBackoff() time.Duration { return 5 * time.Second }

// RunIteration implements Task
func (t *CommunityRefreshTask) RunIteration(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "tasks.community_refresh")
	defer span.End()

	stale, err := t.communities.FindNeedingUpdate(ctx, time.Now().Add(-t.updateInterval))
	if err != nil {
		return err
	}

	sampled := 0
	skipped := 0
	for _, community := range stale {
		about, err := t.client.CommunityByName(ctx, community.Name)
		if err != nil {
			if reddit.IsForbidden(err) {
				t.logger.Warn("Skipping private community", zap.String("community", community.Name))
				skipped++
				continue
			}
			return err
		}

		sample := &models.CommunityHistory{
			Timestamp:       time.Now(),
			Subscribers:     about.Subscribers,
			ActiveUsers:     about.ActiveUsers,
			CommentHideMins: about.CommentScoreHideMins,
		}
		if _, err := t.communities.AppendHistory(ctx, community, sample); err != nil {
			return err
		}
		sampled++
	}

	if len(stale) > 0 {
		telemetry.Counter("history.community_samples", "Community activity samples recorded").Add(ctx, int64(sampled))
		t.logger.Info("Community refresh pass complete",
			zap.Int("stale", len(stale)),
			zap.Int("sampled", sampled),
			zap.Int("skipped", skipped))
	}
	return nil
}
