package models

import (
	"database/sql"
	"time"
)

// Community represents a discussion board being tracked. SeenAt is refreshed
// whenever the community shows up in a discovery scan; communities not seen
// within the configured window drop out of active tracking but keep history.
type Community struct {
	ID             int64          `gorm:"primaryKey;autoIncrement;column:id"`
	RedditShortID  string         `gorm:"type:varchar(16);not null;column:reddit_short_id"`
	Name           string         `gorm:"type:varchar(64);not null;uniqueIndex:community_ux_name;column:name"`
	Title          string         `gorm:"type:varchar(255);column:title"`
	URL            string         `gorm:"type:varchar(255);column:url"`
	Description    sql.NullString `gorm:"type:text;column:description"`
	Summary        sql.NullString `gorm:"type:text;column:summary"`
	SubmissionType sql.NullString `gorm:"type:varchar(16);column:submission_type"`

	CreatedAt time.Time `gorm:"not null;column:created_at"`
	UpdatedAt time.Time `gorm:"not null;column:updated_at"`
	SeenAt    time.Time `gorm:"not null;index:community_ix_seen_at;column:seen_at"`
}

// TableName specifies the table name for Community
func (Community) TableName() string {
	return "community"
}

// CommunityHistory is one immutable activity sample for a community
type CommunityHistory struct {
	ID              int64     `gorm:"primaryKey;autoIncrement;column:id"`
	CommunityID     int64     `gorm:"not null;index:community_history_ix_community;column:community_id"`
	Timestamp       time.Time `gorm:"not null;column:timestamp"`
	Subscribers     int64     `gorm:"not null;column:subscribers"`
	ActiveUsers     int64     `gorm:"not null;column:active_users"`
	CommentHideMins int       `gorm:"not null;default:0;column:comment_hide_mins"`

	// Relationships
	Community *Community `gorm:"foreignKey:CommunityID;references:ID"`
}

// TableName specifies the table name for CommunityHistory
func (CommunityHistory) TableName() string {
	return "community_history"
}
