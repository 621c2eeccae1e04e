package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/internal/models"
)

const (
	defaultStoryLimit = 25
	maxStoryLimit     = 100

	hottestCacheTTL = 30 * time.Second
)

// storyView is the API representation of a story's latest snapshot
type storyView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Community    string    `json:"community"`
	URL          string    `json:"url"`
	Permalink    string    `json:"permalink"`
	CreatedAt    time.Time `json:"createdAt"`
	DiscoveredAt time.Time `json:"discoveredAt"`
	Score        int       `json:"score"`
	Comments     int       `json:"comments"`
	Gilded       int       `json:"gilded"`
	Hotness      float64   `json:"hotness"`
}

// sampleView is the API representation of one popularity sample
type sampleView struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
	Comments  int       `json:"comments"`
	Gilded    int       `json:"gilded"`
	Hotness   float64   `json:"hotness"`
}

// communityView is the API representation of a tracked community
type communityView struct {
	Name   string    `json:"name"`
	Title  string    `json:"title"`
	URL    string    `json:"url"`
	SeenAt time.Time `json:"seenAt"`
}

// hottestStories returns the current top stories by hotness. Responses are
// cached briefly in redis since the ranking only moves as fast as the polling
// tasks do.
func (r *Router) hottestStories(c *gin.Context) {
	limit := defaultStoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxStoryLimit {
			c.JSON(400, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxStoryLimit)})
			return
		}
		limit = parsed
	}

	cacheKey := fmt.Sprintf("stories:hottest:%d", limit)
	if cached, err := r.cache.Get(cacheKey); err == nil {
		c.Data(200, "application/json", []byte(cached))
		return
	}

	stories, err := r.stories.Hottest(c.Request.Context(), limit)
	if err != nil {
		r.logger.Error("Failed to query hottest stories", zap.Error(err))
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	views := make([]storyView, 0, len(stories))
	for _, story := range stories {
		views = append(views, viewFromStory(story))
	}

	payload, err := json.Marshal(gin.H{"stories": views})
	if err != nil {
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}
	if err := r.cache.Set(cacheKey, string(payload), hottestCacheTTL); err != nil {
		r.logger.Debug("Failed to cache response", zap.Error(err))
	}
	c.Data(200, "application/json", payload)
}

// storyByID returns one story's snapshot together with its full history
func (r *Router) storyByID(c *gin.Context) {
	story, err := r.stories.GetByShortID(c.Request.Context(), c.Param("id"))
	if err != nil {
		r.logger.Error("Failed to query story", zap.Error(err))
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}
	if story == nil {
		c.JSON(404, gin.H{"error": "story not found"})
		return
	}

	history, err := r.stories.History(c.Request.Context(), story)
	if err != nil {
		r.logger.Error("Failed to query story history", zap.Error(err))
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	samples := make([]sampleView, 0, len(history))
	for _, sample := range history {
		samples = append(samples, sampleView{
			Timestamp: sample.Timestamp,
			Score:     sample.Score,
			Comments:  sample.Comments,
			Gilded:    sample.Gilded,
			Hotness:   sample.Hotness,
		})
	}

	c.JSON(200, gin.H{
		"story":   viewFromStory(story),
		"history": samples,
	})
}

// activeCommunities returns the communities currently in active tracking
func (r *Router) activeCommunities(c *gin.Context) {
	communities, err := r.boards.FindRecentlySeen(c.Request.Context(), time.Now().Add(-r.seenWindow))
	if err != nil {
		r.logger.Error("Failed to query communities", zap.Error(err))
		c.JSON(500, gin.H{"error": "internal error"})
		return
	}

	views := make([]communityView, 0, len(communities))
	for _, community := range communities {
		views = append(views, communityView{
			Name:   community.Name,
			Title:  community.Title,
			URL:    community.URL,
			SeenAt: community.SeenAt,
		})
	}
	c.JSON(200, gin.H{"communities": views})
}

func viewFromStory(story *models.Story) storyView {
	view := storyView{
		ID:           story.RedditShortID,
		Title:        story.Title,
		Author:       story.Author,
		URL:          story.URL,
		Permalink:    story.Permalink,
		CreatedAt:    story.CreatedAt,
		DiscoveredAt: story.DiscoveredAt,
		Score:        story.Score,
		Comments:     story.Comments,
		Gilded:       story.Gilded,
		Hotness:      story.Hotness,
	}
	if story.Community != nil {
		view.Community = story.Community.Name
	}
	return view
}
