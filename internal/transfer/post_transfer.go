package transfer

import "time"

// PostCreation is the multipart form body for creating a post. Hashtags,
// SelectedAccounts and Overrides arrive as JSON strings because the request
// is multipart form data, not JSON.
type PostCreation struct {
	Content          string `form:"content"`
	Hashtags         string `form:"hashtags"`
	FirstComment     string `form:"first_comment"`
	PostType         string `form:"post_type"`
	ScheduledAt      string `form:"scheduled_at"`
	Timezone         string `form:"timezone"`
	SelectedAccounts string `form:"selected_accounts"`
	Overrides        string `form:"overrides"`
}

// TargetOverride is the per-account caption override inside
// PostCreation.Overrides, keyed by account id.
type TargetOverride struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

type PostUpdate struct {
	Content      string   `json:"content"`
	Hashtags     []string `json:"hashtags"`
	FirstComment string   `json:"first_comment"`
	PostType     string   `json:"post_type"`
}

type ScheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"`
	Timezone    string `json:"timezone"`
}

// TargetOutcome is the per-platform slice of a post's publish result.
type TargetOutcome struct {
	AccountID      int64      `json:"account_id"`
	Platform       string     `json:"platform"`
	AccountName    string     `json:"account_name"`
	Status         string     `json:"status"`
	PlatformPostID string     `json:"platform_post_id,omitempty"`
	PlatformURL    string     `json:"platform_url,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryCount     int        `json:"retry_count"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

type AttemptRecord struct {
	Platform     string    `json:"platform"`
	Attempt      int       `json:"attempt"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PostOutcome is the full publish report for one post.
type PostOutcome struct {
	PostID      int64           `json:"post_id"`
	Status      string          `json:"status"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Targets     []TargetOutcome `json:"targets"`
	Attempts    []AttemptRecord `json:"attempts"`
}
