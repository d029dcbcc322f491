package validation

import (
	"fmt"

	"crosspost/internal/models"
)

const (
	ErrMediaRequired       = "media_required"
	ErrContentTooLong      = "content_too_long"
	ErrTooManyMedia        = "too_many_media"
	ErrMediaTooLarge       = "media_too_large"
	ErrUnsupportedPostType = "unsupported_post_type"
	ErrPostingDisabled     = "posting_disabled"

	WarnFirstCommentUnsupported = "first_comment_unsupported"
	WarnHashtagsUnsupported     = "hashtags_unsupported"
)

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// FirstError returns the operator-facing message of the first error, the one
// recorded on a failed target.
func (r *Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

func (r *Result) addError(code, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(code, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Engine checks a draft against one target's platform capability descriptor
// before any network call is made. All rules run; nothing short-circuits, so
// the caller sees the full problem set at once.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Validate(post *models.Post, target *models.PostTarget, media []*models.MediaAsset, account *models.SocialAccount, platform *models.Platform) *Result {
	result := &Result{}
	content := target.EffectiveContent(post)

	// 1. Media required but absent.
	if platform.RequiresMedia() && len(media) == 0 {
		result.addError(ErrMediaRequired,
			"%s (%s) requires at least one image or video, text-only posts are not supported",
			platform.DisplayName, account.AccountName)
	}

	// 2. Content length against the platform cap, hashtags included.
	if platform.MaxTextLength > 0 && len([]rune(content)) > platform.MaxTextLength {
		result.addError(ErrContentTooLong,
			"content too long for %s (%s): max %d characters, got %d",
			platform.DisplayName, account.AccountName, platform.MaxTextLength, len([]rune(content)))
	}

	// 3. Media count and size caps.
	if platform.MaxImageCount > 0 && len(media) > platform.MaxImageCount {
		result.addError(ErrTooManyMedia,
			"too many media files for %s (%s): max %d, got %d",
			platform.DisplayName, account.AccountName, platform.MaxImageCount, len(media))
	}
	for _, m := range media {
		if m.IsVideo() && platform.MaxVideoSizeMB > 0 && m.FileSize > platform.MaxVideoSizeMB*1024*1024 {
			result.addError(ErrMediaTooLarge,
				"video %s exceeds the %d MB limit of %s",
				m.FileName, platform.MaxVideoSizeMB, platform.DisplayName)
		}
	}

	// 4. Post type support and type-specific constraints.
	if !platform.SupportsPostType(post.PostType) {
		result.addError(ErrUnsupportedPostType,
			"%s posts are not supported on %s (%s)",
			post.PostType, platform.DisplayName, account.AccountName)
	} else if post.PostType == models.PostTypeReel || post.PostType == models.PostTypeVideo {
		for _, m := range media {
			if !m.IsVideo() {
				result.addError(ErrUnsupportedPostType,
					"%s posts require video media, %s is %s",
					post.PostType, m.FileName, m.MimeType)
				break
			}
		}
	}

	// 5. Read-only accounts (personal profiles) are a hard error.
	if !account.PostingEnabled {
		result.addError(ErrPostingDisabled,
			"posting is disabled for %s account %s",
			platform.DisplayName, account.AccountName)
	}

	if post.FirstComment != "" && !platform.SupportsFirstComment {
		result.addWarning(WarnFirstCommentUnsupported,
			"%s does not support first comments, it will be skipped", platform.DisplayName)
	}
	if len(post.Hashtags) > 0 && !platform.SupportsHashtags {
		result.addWarning(WarnHashtagsUnsupported,
			"%s does not index hashtags", platform.DisplayName)
	}

	return result
}
