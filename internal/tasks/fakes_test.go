package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reddwatch/reddwatch/internal/models"
	"github.com/reddwatch/reddwatch/internal/reddit"
)

// fakeStoryStore is an in-memory StoryStore
type fakeStoryStore struct {
	mu      sync.Mutex
	nextID  int64
	stories map[string]*models.Story
	history map[int64][]*models.StoryHistory
}

func newFakeStoryStore() *fakeStoryStore {
	return &fakeStoryStore{
		stories: make(map[string]*models.Story),
		history: make(map[int64][]*models.StoryHistory),
	}
}

func (s *fakeStoryStore) GetByShortID(_ context.Context, shortID string) (*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stories[shortID], nil
}

func (s *fakeStoryStore) CreateIfAbsent(_ context.Context, story *models.Story, first *models.StoryHistory) (*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.stories[story.RedditShortID]; ok {
		return existing, nil
	}
	s.nextID++
	story.ID = s.nextID
	story.DiscoveredAt = first.Timestamp
	story.UpdatedAt = first.Timestamp
	story.CheckedAt = first.Timestamp
	story.Score = first.Score
	story.Comments = first.Comments
	story.Gilded = first.Gilded
	story.Hotness = first.Hotness
	s.stories[story.RedditShortID] = story
	first.StoryID = story.ID
	s.history[story.ID] = append(s.history[story.ID], first)
	return story, nil
}

func (s *fakeStoryStore) AppendHistory(_ context.Context, story *models.Story, sample *models.StoryHistory) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.stories[story.RedditShortID]
	if !ok {
		return false, nil
	}
	stored.Score = sample.Score
	stored.Comments = sample.Comments
	stored.Gilded = sample.Gilded
	stored.Hotness = sample.Hotness
	stored.UpdatedAt = sample.Timestamp
	stored.CheckedAt = sample.Timestamp
	sample.StoryID = stored.ID
	s.history[stored.ID] = append(s.history[stored.ID], sample)
	return true, nil
}

func (s *fakeStoryStore) TouchChecked(_ context.Context, story *models.Story, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.stories[story.RedditShortID]
	if !ok {
		return false, nil
	}
	stored.CheckedAt = at
	return true, nil
}

func (s *fakeStoryStore) FindNeedingUpdate(_ context.Context, earliestDiscovery, lastChecked time.Time, limit int) ([]*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.Story
	for _, story := range s.stories {
		if !story.CheckedAt.After(lastChecked) && !story.DiscoveredAt.Before(earliestDiscovery) {
			matches = append(matches, story)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Hotness > matches[j].Hotness })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *fakeStoryStore) FindArchivable(_ context.Context, createdBefore time.Time, limit int) ([]*models.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.Story
	for _, story := range s.stories {
		if !story.CreatedAt.After(createdBefore) {
			matches = append(matches, story)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *fakeStoryStore) DeleteBatch(_ context.Context, stories []*models.Story) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, story := range stories {
		if _, ok := s.stories[story.RedditShortID]; ok {
			delete(s.stories, story.RedditShortID)
			delete(s.history, story.ID)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStoryStore) History(_ context.Context, story *models.Story) ([]*models.StoryHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.StoryHistory(nil), s.history[story.ID]...), nil
}

func (s *fakeStoryStore) historyLen(shortID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[shortID]
	if !ok {
		return 0
	}
	return len(s.history[story.ID])
}

// fakeCommunityStore is an in-memory CommunityStore
type fakeCommunityStore struct {
	mu          sync.Mutex
	nextID      int64
	communities map[string]*models.Community
	history     map[int64][]*models.CommunityHistory
}

func newFakeCommunityStore() *fakeCommunityStore {
	return &fakeCommunityStore{
		communities: make(map[string]*models.Community),
		history:     make(map[int64][]*models.CommunityHistory),
	}
}

func (s *fakeCommunityStore) add(name string, seenAt time.Time) *models.Community {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	community := &models.Community{ID: s.nextID, Name: name, SeenAt: seenAt, UpdatedAt: seenAt}
	s.communities[name] = community
	return community
}

func (s *fakeCommunityStore) GetByName(_ context.Context, name string) (*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.communities[name], nil
}

func (s *fakeCommunityStore) CreateIfAbsent(_ context.Context, community *models.Community) (*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.communities[community.Name]; ok {
		return existing, nil
	}
	s.nextID++
	community.ID = s.nextID
	s.communities[community.Name] = community
	return community, nil
}

func (s *fakeCommunityStore) MarkSeen(_ context.Context, community *models.Community, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.communities[community.Name]
	if !ok {
		return false, nil
	}
	stored.SeenAt = at
	return true, nil
}

func (s *fakeCommunityStore) FindRecentlySeen(_ context.Context, since time.Time) ([]*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.Community
	for _, community := range s.communities {
		if community.SeenAt.After(since) {
			matches = append(matches, community)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches, nil
}

func (s *fakeCommunityStore) FindNeedingUpdate(_ context.Context, updatedBefore time.Time) ([]*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*models.Community
	for _, community := range s.communities {
		if !community.UpdatedAt.After(updatedBefore) {
			matches = append(matches, community)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches, nil
}

func (s *fakeCommunityStore) AppendHistory(_ context.Context, community *models.Community, sample *models.CommunityHistory) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.communities[community.Name]
	if !ok {
		return false, nil
	}
	stored.UpdatedAt = sample.Timestamp
	sample.CommunityID = stored.ID
	s.history[stored.ID] = append(s.history[stored.ID], sample)
	return true, nil
}

// fakeListingClient serves canned API responses
type fakeListingClient struct {
	mu        sync.Mutex
	listings  map[reddit.SortStyle][]*reddit.Story
	byID      map[string]*reddit.Story
	byIDCalls [][]string
	about     map[string]*reddit.Community
	forbidden map[string]bool
	frontPage map[string]struct{}
}

func newFakeListingClient() *fakeListingClient {
	return &fakeListingClient{
		listings:  make(map[reddit.SortStyle][]*reddit.Story),
		byID:      make(map[string]*reddit.Story),
		about:     make(map[string]*reddit.Community),
		forbidden: make(map[string]bool),
		frontPage: make(map[string]struct{}),
	}
}

func (c *fakeListingClient) StoriesForCommunities(_ context.Context, _ []string, style reddit.SortStyle, _ reddit.TimeRange, limit int) ([]*reddit.Story, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stories := c.listings[style]
	if len(stories) > limit {
		stories = stories[:limit]
	}
	return stories, nil
}

func (c *fakeListingClient) StoriesByID(_ context.Context, shortIDs []string) (map[string]*reddit.Story, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(shortIDs) == 0 || len(shortIDs) > reddit.MaxItemsPerListingPage {
		return nil, fmt.Errorf("invalid id set size %d", len(shortIDs))
	}
	c.byIDCalls = append(c.byIDCalls, append([]string(nil), shortIDs...))
	result := make(map[string]*reddit.Story)
	for _, id := range shortIDs {
		if story, ok := c.byID[id]; ok {
			result[id] = story
		}
	}
	return result, nil
}

func (c *fakeListingClient) DefaultFrontPageCommunities(_ context.Context) (map[string]struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frontPage, nil
}

func (c *fakeListingClient) CommunityByName(_ context.Context, name string) (*reddit.Community, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forbidden[name] {
		return nil, &reddit.ForbiddenError{Op: "about"}
	}
	community, ok := c.about[name]
	if !ok {
		return nil, fmt.Errorf("unknown community %s", name)
	}
	return community, nil
}
