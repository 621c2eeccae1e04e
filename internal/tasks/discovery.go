package tasks

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// DiscoveryTask finds new stories across the actively tracked communities.
// Each iteration unions two listings, a fast-rising sample (top of the last
// hour) and the newest submissions, so both breakout stories and brand-new
// ones enter tracking promptly.
type DiscoveryTask struct {
	stories     StoryStore
	communities CommunityStore
	client      ListingClient
	storyCount  int
	seenWindow  time.Duration
	resample    time.Duration
	logger      *zap.Logger
}

// NewDiscoveryTask creates the story discovery task
func NewDiscoveryTask(stories StoryStore, communities CommunityStore, client ListingClient, cfg *config.TasksConfig) *DiscoveryTask {
	return &DiscoveryTask{
		stories:     stories,
		communities: communities,
		client:      client,
		storyCount:  cfg.DiscoveryStoryCount,
		seenWindow:  cfg.CommunitySeenWindow,
		resample:    cfg.HistoryMinInterval,
		logger:      logging.GetLogger().With(zap.String("component", "discovery-task")),
	}
}

// Name implements Task
func (t *DiscoveryTask) Name() string { return "story-discovery" }

// MinRepetition implements Task
func (t *DiscoveryTask) MinRepetition() time.Duration { return 60 * time.Second }

// ExceptionBackoff implements Task
func (t *DiscoveryTask) ExceptionBackoff() time.Duration { return 5 * time.Second }

// RunIteration implements Task
func (t *DiscoveryTask) RunIteration(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "tasks.discovery")
	defer span.End()

	active, err := t.communities.FindRecentlySeen(ctx, time.Now().Add(-t.seenWindow))
	if err != nil {
		return err
	}
	if len(active) == 0 {
		t.logger.Warn("No active communities yet, skipping discovery")
		return nil
	}

	names := make([]string, 0, len(active))
	byName := make(map[string]*models.Community, len(active))
	for _, community := range active {
		names = append(names, community.Name)
		byName[community.Name] = community
	}

	candidates, err := t.fetchCandidates(ctx, names)
	if err != nil {
		return err
	}

	// One bad story must not sink the rest of the pass
	discovered := 0
	resampled := 0
	dropped := 0
	failed := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		existing, err := t.stories.GetByShortID(ctx, candidate.ID)
		if err != nil {
			t.logger.Error("Failed to look up story",
				zap.String("story", candidate.ID), zap.Error(err))
			failed++
			continue
		}

		sample := sampleFromWire(candidate, time.Now())
		if existing != nil {
			// Recently polled stories do not need another sample from the
			// discovery listing
			if time.Since(existing.CheckedAt) < t.resample {
				continue
			}
			if _, err := t.stories.AppendHistory(ctx, existing, sample); err != nil {
				t.logger.Error("Failed to resample story",
					zap.String("story", candidate.ID), zap.Error(err))
				failed++
				continue
			}
			resampled++
			continue
		}

		community, ok := byName[candidate.Subreddit]
		if !ok {
			// Listing returned a story outside the active set, likely a
			// community that aged out mid-request
			t.logger.Debug("Dropping story from untracked community",
				zap.String("story", candidate.ID),
				zap.String("community", candidate.Subreddit))
			dropped++
			continue
		}

		story := storyFromWire(candidate, community.ID)
		if _, err := t.stories.CreateIfAbsent(ctx, story, sample); err != nil {
			t.logger.Error("Failed to store discovered story",
				zap.String("story", candidate.ID), zap.Error(err))
			failed++
			continue
		}
		discovered++
	}

	telemetry.Counter("discovery.stories", "Stories newly discovered").Add(ctx, int64(discovered))
	t.logger.Info("Discovery pass complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("discovered", discovered),
		zap.Int("resampled", resampled),
		zap.Int("dropped", dropped),
		zap.Int("failed", failed))
	return nil
}

// fetchCandidates unions the two discovery listings, deduplicating by short id
func (t *DiscoveryTask) fetchCandidates(ctx context.Context, names []string) ([]*reddit.Story, error) {
	rising, err := t.client.StoriesForCommunities(ctx, names, reddit.SortTop, reddit.RangeHour, t.storyCount)
	if err != nil {
		return nil, err
	}
	newest, err := t.client.StoriesForCommunities(ctx, names, reddit.SortNew, reddit.RangeAll, t.storyCount)
	if err != nil {
		return nil, err
	}

	candidates := make([]*reddit.Story, 0, len(rising)+len(newest))
	seen := make(map[string]struct{}, len(rising)+len(newest))
	for _, story := range append(rising, newest...) {
		if _, ok := seen[story.ID]; ok {
			continue
		}
		seen[story.ID] = struct{}{}
		candidates = append(candidates, story)
	}
	return candidates, nil
}

// storyFromWire converts a wire story into its stored representation
func storyFromWire(wire *reddit.Story, communityID int64) *models.Story {
	return &models.Story{
		RedditShortID: wire.ID,
		Title:         wire.Title,
		Author:        wire.Author,
		CommunityID:   communityID,
		URL:           wire.URL,
		Domain:        wire.Domain,
		Permalink:     wire.Permalink,
		Thumbnail:     nullString(wire.Thumbnail),
		IsSelf:        wire.IsSelf,
		Selftext:      nullString(wire.Selftext),
		Over18:        wire.Over18,
		Stickied:      wire.Stickied,
		Distinguished: nullString(wire.Distinguished),
		CreatedAt:     wire.CreatedAt(),
	}
}

// sampleFromWire converts a wire story into one popularity sample
func sampleFromWire(wire *reddit.Story, at time.Time) *models.StoryHistory {
	return &models.StoryHistory{
		Timestamp: at,
		Score:     wire.Score,
		Comments:  wire.NumComments,
		Gilded:    wire.Gilded,
		Hotness:   wire.Hotness(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
