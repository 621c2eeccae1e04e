package archive

import (
	"encoding/json"
	"sort"

	"github.com/reddwatch/reddwatch/internal/models"
)

// storySummary mirrors the story's final snapshot in the archived document
type storySummary struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	CreatedAt     int64   `json:"createdAt"`
	DiscoveredAt  int64   `json:"discoveredAt"`
	Domain        string  `json:"domain"`
	URL           string  `json:"url"`
	Thumbnail     *string `json:"thumbnail"`
	Permalink     string  `json:"permalink"`
	Score         int     `json:"score"`
	Comments      int     `json:"comments"`
	Hotness       float64 `json:"hotness"`
	Gilded        int     `json:"gilded"`
	Community     string  `json:"community"`
	IsSelf        bool    `json:"isSelf"`
	SelfText      *string `json:"selfText"`
	IsOver18      bool    `json:"isOver18"`
	IsStickied    bool    `json:"isStickied"`
	Distinguished *string `json:"distinguished"`
}

// storyHistoryColumns is the columnar layout downstream batch jobs consume:
// one array per metric, index-aligned, ordered by timestamp
type storyHistoryColumns struct {
	Timestamp []int64   `json:"timestamp"`
	Score     []int     `json:"score"`
	Hotness   []float64 `json:"hotness"`
	Gilded    []int     `json:"gilded"`
	Comments  []int     `json:"comments"`
}

type storyDocument struct {
	Summary storySummary        `json:"summary"`
	History storyHistoryColumns `json:"history"`
}

// RenderStory builds the archive document for one story and its full history
func RenderStory(story *models.Story, communityName string, history []*models.StoryHistory) (Document, error) {
	summary := storySummary{
		ID:           story.RedditShortID,
		Title:        story.Title,
		Author:       story.Author,
		CreatedAt:    story.CreatedAt.UnixMilli(),
		DiscoveredAt: story.DiscoveredAt.UnixMilli(),
		Domain:       story.Domain,
		URL:          story.URL,
		Permalink:    story.Permalink,
		Score:        story.Score,
		Comments:     story.Comments,
		Hotness:      story.Hotness,
		Gilded:       story.Gilded,
		Community:    communityName,
		IsSelf:       story.IsSelf,
		IsOver18:     story.Over18,
		IsStickied:   story.Stickied,
	}
	if story.Thumbnail.Valid {
		summary.Thumbnail = &story.Thumbnail.String
	}
	if story.Selftext.Valid {
		summary.SelfText = &story.Selftext.String
	}
	if story.Distinguished.Valid {
		summary.Distinguished = &story.Distinguished.String
	}

	// Sort here instead of relying on a timestamp index in the database
	samples := append([]*models.StoryHistory(nil), history...)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	columns := storyHistoryColumns{
		Timestamp: make([]int64, 0, len(samples)),
		Score:     make([]int, 0, len(samples)),
		Hotness:   make([]float64, 0, len(samples)),
		Gilded:    make([]int, 0, len(samples)),
		Comments:  make([]int, 0, len(samples)),
	}
	for _, sample := range samples {
		columns.Timestamp = append(columns.Timestamp, sample.Timestamp.UnixMilli())
		columns.Score = append(columns.Score, sample.Score)
		columns.Hotness = append(columns.Hotness, sample.Hotness)
		columns.Gilded = append(columns.Gilded, sample.Gilded)
		columns.Comments = append(columns.Comments, sample.Comments)
	}

	payload, err := json.Marshal(storyDocument{Summary: summary, History: columns})
	if err != nil {
		return Document{}, err
	}

	return Document{
		StoryID: story.ID,
		ShortID: story.RedditShortID,
		JSON:    payload,
	}, nil
}
