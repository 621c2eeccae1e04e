package models

import (
	"database/sql"
	"time"
)

// Story represents a tracked post together with its latest popularity snapshot.
// Timestamps obey discovered_at <= updated_at <= checked_at: checked_at moves on
// every polling attempt, updated_at only when the source returned fresh data.
type Story struct {
	ID            int64          `gorm:"primaryKey;autoIncrement;column:id"`
	RedditShortID string         `gorm:"type:varchar(16);not null;uniqueIndex:story_ux_short_id;column:reddit_short_id"`
	Title         string         `gorm:"type:varchar(512);not null;column:title"`
	Author        string         `gorm:"type:varchar(64);not null;column:author"`
	CommunityID   int64          `gorm:"not null;column:community_id"`
	URL           string         `gorm:"type:varchar(2048);not null;column:url"`
	Domain        string         `gorm:"type:varchar(255);column:domain"`
	Permalink     string         `gorm:"type:varchar(1024);column:permalink"`
	Thumbnail     sql.NullString `gorm:"type:varchar(1024);column:thumbnail"`
	IsSelf        bool           `gorm:"not null;default:false;column:is_self"`
	Selftext      sql.NullString `gorm:"type:text;column:selftext"`
	Over18        bool           `gorm:"not null;default:false;column:over18"`
	Stickied      bool           `gorm:"not null;default:false;column:stickied"`
	Distinguished sql.NullString `gorm:"type:varchar(32);column:distinguished"`

	CreatedAt    time.Time `gorm:"not null;column:created_at"`
	DiscoveredAt time.Time `gorm:"not null;column:discovered_at"`
	UpdatedAt    time.Time `gorm:"not null;column:updated_at"`
	CheckedAt    time.Time `gorm:"not null;index:story_ix_checked_at;column:checked_at"`

	Score    int     `gorm:"not null;default:0;column:score"`
	Comments int     `gorm:"not null;default:0;column:comments"`
	Gilded   int     `gorm:"not null;default:0;column:gilded"`
	Hotness  float64 `gorm:"not null;default:0;index:story_ix_hotness;column:hotness"`

	// Relationships
	Community *Community `gorm:"foreignKey:CommunityID;references:ID"`
}

// TableName specifies the table name for Story
func (Story) TableName() string {
	return "story"
}

// StoryHistory is one immutable popularity sample for a story
type StoryHistory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id"`
	StoryID   int64     `gorm:"not null;index:story_history_ix_story;column:story_id"`
	Timestamp time.Time `gorm:"not null;column:timestamp"`
	Score     int       `gorm:"not null;column:score"`
	Comments  int       `gorm:"not null;column:comments"`
	Gilded    int       `gorm:"not null;column:gilded"`
	Hotness   float64   `gorm:"not null;column:hotness"`

	// Relationships
	Story *Story `gorm:"foreignKey:StoryID;references:ID"`
}

// TableName specifies the table name for StoryHistory
func (StoryHistory) TableName() string {
	return "story_history"
}
