package models

import (
	"strings"
	"time"
)

type Post struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	PostType     string     `db:"post_type" json:"post_type"`
	Content      string     `db:"content" json:"content"`
	Hashtags     []string   `db:"hashtags" json:"hashtags"`
	FirstComment string     `db:"first_comment" json:"first_comment"`
	Status       string     `db:"status" json:"status"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft              = "draft"
	PostStatusScheduled          = "scheduled"
	PostStatusPublishing         = "publishing"
	PostStatusPublished          = "published"
	PostStatusPartiallyPublished = "partially_published"
	PostStatusFailed             = "failed"
	PostStatusCancelled          = "cancelled"
)

const (
	PostTypeText     = "text"
	PostTypeImage    = "image"
	PostTypeVideo    = "video"
	PostTypeCarousel = "carousel"
	PostTypeStory    = "story"
	PostTypeReel     = "reel"
)

// RenderContent appends the hashtag block to a caption the way the
// platforms expect it ("caption\n\n#one #two").
func RenderContent(content string, hashtags []string) string {
	if len(hashtags) == 0 {
		return content
	}
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimPrefix(strings.TrimSpace(h), "#")
		if h != "" {
			tags = append(tags, "#"+h)
		}
	}
	if len(tags) == 0 {
		return content
	}
	if content == "" {
		return strings.Join(tags, " ")
	}
	return content + "\n\n" + strings.Join(tags, " ")
}

type MediaAsset struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	FileSize  int64     `db:"file_size" json:"file_size"`
	FileURL   string    `db:"file_url" json:"file_url"`
	Width     int       `db:"width" json:"width"`
	Height    int       `db:"height" json:"height"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsVideo reports whether the asset holds video content.
func (m *MediaAsset) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

type PostMedia struct {
	PostID       int64     `db:"post_id"`
	AssetID      int64     `db:"asset_id"`
	DisplayOrder int       `db:"display_order"`
	CreatedAt    time.Time `db:"created_at"`
}
