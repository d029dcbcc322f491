package models

// Platform is the static capability descriptor the validation engine checks
// drafts against. Descriptors change only through configuration, never by
// user action.
type Platform struct {
	Name                 string   `json:"name"`
	DisplayName          string   `json:"display_name"`
	MaxTextLength        int      `json:"max_text_length"`
	MaxImageCount        int      `json:"max_image_count"`
	MaxVideoSizeMB       int64    `json:"max_video_size_mb"`
	SupportedPostTypes   []string `json:"supported_post_types"`
	SupportsScheduling   bool     `json:"supports_scheduling"`
	SupportsHashtags     bool     `json:"supports_hashtags"`
	SupportsFirstComment bool     `json:"supports_first_comment"`
}

// SupportsPostType reports whether the platform advertises the given type.
func (p *Platform) SupportsPostType(postType string) bool {
	for _, t := range p.SupportedPostTypes {
		if t == postType {
			return true
		}
	}
	return false
}

// RequiresMedia reports whether every supported post type needs media, i.e.
// the platform has no text-only posts (Instagram, YouTube).
func (p *Platform) RequiresMedia() bool {
	return !p.SupportsPostType(PostTypeText)
}
