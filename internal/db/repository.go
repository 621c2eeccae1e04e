package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reddwatch/reddwatch/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// StoryRepository provides story-related database operations
type StoryRepository struct {
	*Repository
}

// NewStoryRepository creates a new story repository
func NewStoryRepository(repo *Repository) *StoryRepository {
	return &StoryRepository{Repository: repo}
}

// GetByShortID retrieves a story by its reddit short id
func (r *StoryRepository) GetByShortID(ctx context.Context, shortID string) (*models.Story, error) {
	var story models.Story
	if err := r.db.WithContext(ctx).Where("reddit_short_id = ?", shortID).First(&story).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &story, nil
}

// CreateIfAbsent inserts a newly discovered story together with its first
// history sample. The insert is conditional on the unique short id; if another
// writer got there first, the canonical stored row is returned and no second
// history sample is written.
func (r *StoryRepository) CreateIfAbsent(ctx context.Context, story *models.Story, first *models.StoryHistory) (*models.Story, error) {
	story.DiscoveredAt = first.Timestamp
	story.UpdatedAt = first.Timestamp
	story.CheckedAt = first.Timestamp
	story.Score = first.Score
	story.Comments = first.Comments
	story.Gilded = first.Gilded
	story.Hotness = first.Hotness

	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reddit_short_id"}},
			DoNothing: true,
		}).Create(story)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		first.StoryID = story.ID
		return tx.Create(first).Error
	})
	if err != nil {
		return nil, err
	}
	if created {
		return story, nil
	}

	// Lost the race: return the row the winner inserted
	existing, err := r.GetByShortID(ctx, story.RedditShortID)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// AppendHistory advances the story's popularity snapshot and appends the
// sample. The snapshot update is a single conditional UPDATE on the story id,
// so concurrent workers cannot interleave partial writes. Returns false if the
// story no longer exists (e.g. archived meanwhile).
func (r *StoryRepository) AppendHistory(ctx context.Context, story *models.Story, sample *models.StoryHistory) (bool, error) {
	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Story{}).
			Where("id = ?", story.ID).
			Updates(map[string]interface{}{
				"score":      sample.Score,
				"comments":   sample.Comments,
				"gilded":     sample.Gilded,
				"hotness":    sample.Hotness,
				"updated_at": sample.Timestamp,
				"checked_at": sample.Timestamp,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		sample.StoryID = story.ID
		return tx.Create(sample).Error
	})
	return updated, err
}

// TouchChecked advances checked_at only, for polls where the source returned
// no data for the story (deleted or private upstream). No sample is written.
// UpdateColumn keeps gorm's update-time tracking from also bumping updated_at,
// which must only move when popularity data changed.
func (r *StoryRepository) TouchChecked(ctx context.Context, story *models.Story, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Story{}).
		Where("id = ?", story.ID).
		UpdateColumn("checked_at", at)
	return res.RowsAffected > 0, res.Error
}

// FindNeedingUpdate returns the most relevant stories whose last poll is older
// than lastChecked and whose discovery falls after earliestDiscovery
func (r *StoryRepository) FindNeedingUpdate(ctx context.Context, earliestDiscovery, lastChecked time.Time, limit int) ([]*models.Story, error) {
	var stories []*models.Story
	if err := r.db.WithContext(ctx).
		Where("checked_at <= ? AND discovered_at >= ?", lastChecked, earliestDiscovery).
		Order("hotness DESC").
		Limit(limit).
		Find(&stories).Error; err != nil {
		return nil, err
	}
	return stories, nil
}

// FindArchivable returns stories created before the given cutoff, with their
// community preloaded for rendering
func (r *StoryRepository) FindArchivable(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Story, error) {
	var stories []*models.Story
	if err := r.db.WithContext(ctx).
		Preload("Community").
		Where("created_at <= ?", createdBefore).
		Limit(limit).
		Find(&stories).Error; err != nil {
		return nil, err
	}
	return stories, nil
}

// DeleteBatch removes stories and their history from primary storage
func (r *StoryRepository) DeleteBatch(ctx context.Context, stories []*models.Story) (int64, error) {
	if len(stories) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(stories))
	for _, story := range stories {
		ids = append(ids, story.ID)
	}

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("story_id IN ?", ids).Delete(&models.StoryHistory{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Story{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

// History returns all history samples for a story ordered by timestamp
func (r *StoryRepository) History(ctx context.Context, story *models.Story) ([]*models.StoryHistory, error) {
	var history []*models.StoryHistory
	if err := r.db.WithContext(ctx).
		Where("story_id = ?", story.ID).
		Order("timestamp ASC").
		Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

// Hottest returns the top stories by hotness with community preloaded
func (r *StoryRepository) Hottest(ctx context.Context, limit int) ([]*models.Story, error) {
	var stories []*models.Story
	if err := r.db.WithContext(ctx).
		Preload("Community").
		Order("hotness DESC").
		Limit(limit).
		Find(&stories).Error; err != nil {
		return nil, err
	}
	return stories, nil
}

// CommunityRepository provides community-related database operations
type CommunityRepository struct {
	*Repository
}

// NewCommunityRepository creates a new community repository
func NewCommunityRepository(repo *Repository) *CommunityRepository {
	return &CommunityRepository{Repository: repo}
}

// GetByName retrieves a community by name
func (r *CommunityRepository) GetByName(ctx context.Context, name string) (*models.Community, error) {
	var community models.Community
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&community).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &community, nil
}

// CreateIfAbsent inserts a newly discovered community, returning the stored
// row when another writer won the race on the unique name
func (r *CommunityRepository) CreateIfAbsent(ctx context.Context, community *models.Community) (*models.Community, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(community)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return community, nil
	}
	return r.GetByName(ctx, community.Name)
}

// MarkSeen refreshes the community's seen_at timestamp. UpdateColumn keeps
// updated_at untouched; that column tracks the last activity sample and gates
// FindNeedingUpdate.
func (r *CommunityRepository) MarkSeen(ctx context.Context, community *models.Community, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Community{}).
		Where("id = ?", community.ID).
		UpdateColumn("seen_at", at)
	return res.RowsAffected > 0, res.Error
}

// FindRecentlySeen returns communities seen in a discovery scan since the
// given time; the rest have aged out of active tracking
func (r *CommunityRepository) FindRecentlySeen(ctx context.Context, since time.Time) ([]*models.Community, error) {
	var communities []*models.Community
	if err := r.db.WithContext(ctx).
		Where("seen_at > ?", since).
		Find(&communities).Error; err != nil {
		return nil, err
	}
	return communities, nil
}

// FindNeedingUpdate returns communities whose last history sample is older
// than the given time
func (r *CommunityRepository) FindNeedingUpdate(ctx context.Context, updatedBefore time.Time) ([]*models.Community, error) {
	var communities []*models.Community
	if err := r.db.WithContext(ctx).
		Where("updated_at <= ?", updatedBefore).
		Find(&communities).Error; err != nil {
		return nil, err
	}
	return communities, nil
}

// AppendHistory appends an activity sample and advances updated_at
func (r *CommunityRepository) AppendHistory(ctx context.Context, community *models.Community, sample *models.CommunityHistory) (bool, error) {
	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Community{}).
			Where("id = ?", community.ID).
			Update("updated_at", sample.Timestamp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		updated = true
		sample.CommunityID = community.ID
		return tx.Create(sample).Error
	})
	return updated, err
}
