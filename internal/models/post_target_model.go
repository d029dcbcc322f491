package models

import "time"

// PostTarget is one (post, account) publishing attempt. Targets are owned by
// their post (cascade delete) and reference the account by id only, so
// disconnecting an account keeps the history intact.
type PostTarget struct {
	ID               int64      `db:"id" json:"id"`
	PostID           int64      `db:"post_id" json:"post_id"`
	AccountID        int64      `db:"account_id" json:"account_id"`
	ContentOverride  string     `db:"content_override" json:"content_override"`
	HashtagsOverride []string   `db:"hashtags_override" json:"hashtags_override"`
	Status           string     `db:"status" json:"status"`
	PlatformPostID   string     `db:"platform_post_id" json:"platform_post_id"`
	PlatformURL      string     `db:"platform_url" json:"platform_url"`
	ErrorMessage     string     `db:"error_message" json:"error_message"`
	RetryCount       int        `db:"retry_count" json:"retry_count"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	TargetStatusPending    = "pending"
	TargetStatusPublishing = "publishing"
	TargetStatusSuccess    = "success"
	TargetStatusFailed     = "failed"
	TargetStatusCancelled  = "cancelled"
)

// EffectiveContent resolves the per-target caption: the override when set,
// the post content otherwise, with the hashtag block appended.
func (t *PostTarget) EffectiveContent(post *Post) string {
	content := post.Content
	if t.ContentOverride != "" {
		content = t.ContentOverride
	}
	hashtags := post.Hashtags
	if len(t.HashtagsOverride) > 0 {
		hashtags = t.HashtagsOverride
	}
	return RenderContent(content, hashtags)
}
