package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
	"github.com/reddwatch/reddwatch/pkg/logging"
	"github.com/reddwatch/reddwatch/pkg/telemetry"
)

// CommunityDiscoveryTask samples the front page to find which communities are
// currently surfacing stories. Known communities get their seen_at refreshed;
// unknown ones are fetched and stored so story discovery starts covering them.
type CommunityDiscoveryTask struct {
	communities CommunityStore
	client      ListingClient
	logger      *zap.Logger
}

// NewCommunityDiscoveryTask creates the community discovery task
func NewCommunityDiscoveryTask(communities CommunityStore, client ListingClient) *CommunityDiscoveryTask {
	return &CommunityDiscoveryTask{
		communities: communities,
		client:      client,
		logger:      logging.GetLogger().With(zap.String("component", "community-discovery-task")),
	}
}

// Name implements Task
func (t *CommunityDiscoveryTask) Name() string { return "community-discovery" }

// MinRepetition implements Task
func (t *CommunityDiscoveryTask) MinRepetition() time.Duration { return 3 * time.Hour }

// ExceptionBackoff implements Task
func (t *CommunityDiscoveryTask) ExceptionBackoff() time.Duration { return time.Minute }

// RunIteration implements Task
func (t *CommunityDiscoveryTask) RunIteration(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "tasks.community_discovery")
	defer span.End()

	sampled, err := t.client.DefaultFrontPageCommunities(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	created := 0
	refreshed := 0
	for name := range sampled {
		existing, err := t.communities.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if existing == nil {
			existing, err = t.create(ctx, name, now)
			if err != nil {
				return err
			}
			if existing == nil {
				continue // community went private between sampling and fetch
			}
			created++
		}
		if _, err := t.communities.MarkSeen(ctx, existing, now); err != nil {
			return err
		}
		refreshed++
	}

	telemetry.Counter("discovery.communities", "Communities newly discovered").Add(ctx, int64(created))
	t.logger.Info("Community discovery pass complete",
		zap.Int("sampled", len(sampled)),
		zap.Int("created", created),
		zap.Int("seen", refreshed))
	return nil
}

func (t *CommunityDiscoveryTask) create(ctx context.Context, name string, now time.Time) (*models.Community, error) {
	about, err := t.client.CommunityByName(ctx, name)
	if err != nil {
		if reddit.IsForbidden(err) {
			t.logger.Info("Skipping private community", zap.String("community", name))
			return nil, nil
		}
		return nil, err
	}

	return t.communities.CreateIfAbsent(ctx, &models.Community{
		RedditShortID:  about.ID,
		Name:           about.Name,
		Title:          about.Title,
		URL:            about.URL,
		Description:    nullString(about.Description),
		Summary:        nullString(about.PublicDescription),
		SubmissionType: nullString(about.SubmissionType),
		CreatedAt:      about.CreatedAt(),
		UpdatedAt:      now,
		SeenAt:         now,
	})
}
