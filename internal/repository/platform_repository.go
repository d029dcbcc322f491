package repository

import (
	"crosspost/internal/models"
)

// PlatformRepository serves the static capability descriptors the validation
// engine checks targets against. Descriptors only change through
// configuration, so they live in code rather than the database.
type PlatformRepository interface {
	GetByName(name string) *models.Platform
	List() []*models.Platform
}

type platformRepository struct {
	platforms map[string]*models.Platform
	order     []string
}

func NewPlatformRepository() PlatformRepository {
	r := &platformRepository{platforms: make(map[string]*models.Platform)}
	for _, p := range defaultPlatforms() {
		r.platforms[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r
}

func (r *platformRepository) GetByName(name string) *models.Platform {
	return r.platforms[name]
}

func (r *platformRepository) List() []*models.Platform {
	out := make([]*models.Platform, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.platforms[name])
	}
	return out
}

func defaultPlatforms() []*models.Platform {
	return []*models.Platform{
		{
			Name:                 "facebook",
			DisplayName:          "Facebook",
			MaxTextLength:        63206,
			MaxImageCount:        10,
			MaxVideoSizeMB:       4000,
			SupportedPostTypes:   []string{models.PostTypeText, models.PostTypeImage, models.PostTypeVideo, models.PostTypeCarousel},
			SupportsScheduling:   true,
			SupportsHashtags:     true,
			SupportsFirstComment: true,
		},
		{
			Name:                 "instagram",
			DisplayName:          "Instagram",
			MaxTextLength:        2200,
			MaxImageCount:        10,
			MaxVideoSizeMB:       100,
			SupportedPostTypes:   []string{models.PostTypeImage, models.PostTypeVideo, models.PostTypeCarousel, models.PostTypeStory, models.PostTypeReel},
			SupportsScheduling:   true,
			SupportsHashtags:     true,
			SupportsFirstComment: true,
		},
		{
			Name:               "linkedin",
			DisplayName:        "LinkedIn",
			MaxTextLength:      3000,
			MaxImageCount:      20,
			MaxVideoSizeMB:     200,
			SupportedPostTypes: []string{models.PostTypeText, models.PostTypeImage, models.PostTypeVideo, models.PostTypeCarousel},
			SupportsScheduling: true,
			SupportsHashtags:   true,
		},
		{
			Name:               "tiktok",
			DisplayName:        "TikTok",
			MaxTextLength:      2200,
			MaxImageCount:      35,
			MaxVideoSizeMB:     4096,
			SupportedPostTypes: []string{models.PostTypeImage, models.PostTypeVideo, models.PostTypeCarousel, models.PostTypeReel},
			SupportsScheduling: true,
			SupportsHashtags:   true,
		},
		{
			Name:               "twitter",
			DisplayName:        "Twitter/X",
			MaxTextLength:      280,
			MaxImageCount:      4,
			MaxVideoSizeMB:     512,
			SupportedPostTypes: []string{models.PostTypeText, models.PostTypeImage, models.PostTypeVideo},
			SupportsScheduling: true,
			SupportsHashtags:   true,
		},
		{
			Name:               "youtube",
			DisplayName:        "YouTube",
			MaxTextLength:      5000,
			MaxImageCount:      1,
			MaxVideoSizeMB:     2048,
			SupportedPostTypes: []string{models.PostTypeVideo, models.PostTypeReel},
			SupportsScheduling: true,
			SupportsHashtags:   true,
		},
	}
}
