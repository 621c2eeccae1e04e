package tasks

import (
	"context"
	"time"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
)

// StoryStore is the slice of story persistence the tasks depend on
type StoryStore interface {
	GetByShortID(ctx context.Context, shortID string) (*models.Story, error)
	CreateIfAbsent(ctx context.Context, story *models.Story, first *models.StoryHistory) (*models.Story, error)
	AppendHistory(ctx context.Context, story *models.Story, sample *models.StoryHistory) (bool, error)
	TouchChecked(ctx context.Context, story *models.Story, at time.Time) (bool, error)
	FindNeedingUpdate(ctx context.Context, earliestDiscovery, lastChecked time.Time, limit int) ([]*models.Story, error)
	FindArchivable(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Story, error)
	DeleteBatch(ctx context.Context, stories []*models.Story) (int64, error)
	History(ctx context.Context, story *models.Story) ([]*models.StoryHistory, error)
}

// CommunityStore is the slice of community persistence the tasks depend on
type CommunityStore interface {
	GetByName(ctx context.Context, name string) (*models.Community, error)
	CreateIfAbsent(ctx context.Context, community *models.Community) (*models.Community, error)
	MarkSeen(ctx context.Context, community *models.Community, at time.Time) (bool, error)
	FindRecentlySeen(ctx context.Context, since time.Time) ([]*models.Community, error)
	FindNeedingUpdate(ctx context.Context, updatedBefore time.Time) ([]*models.Community, error)
	AppendHistory(ctx context.Context, community *models.Community, sample *models.CommunityHistory) (bool, error)
}

// ListingClient is the slice of the reddit API the tasks depend on
type ListingClient interface {
	StoriesForCommunities(ctx context.Context, communities []string, style reddit.SortStyle, timeRange reddit.TimeRange, limit int) ([]*reddit.Story, error)
	StoriesByID(ctx context.Context, shortIDs []string) (map[string]*reddit.Story, error)
	DefaultFrontPageCommunities(ctx context.Context) (map[string]struct{}, error)
	CommunityByName(ctx context.Context, name string) (*reddit.Community, error)
}
