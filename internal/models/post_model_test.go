package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderContent(t *testing.T) {
	assert.Equal(t, "hello", RenderContent("hello", nil))
	assert.Equal(t, "hello\n\n#go #testing", RenderContent("hello", []string{"go", "testing"}))
	assert.Equal(t, "#go", RenderContent("", []string{"go"}))
	assert.Equal(t, "hello\n\n#go", RenderContent("hello", []string{"  #go  ", "", "#"}))
}

func TestEffectiveContentResolvesOverrides(t *testing.T) {
	post := &Post{Content: "base caption", Hashtags: []string{"one"}}

	assert.Equal(t, "base caption\n\n#one", (&PostTarget{}).EffectiveContent(post))

	target := &PostTarget{ContentOverride: "custom caption"}
	assert.Equal(t, "custom caption\n\n#one", target.EffectiveContent(post))

	target = &PostTarget{HashtagsOverride: []string{"two", "three"}}
	assert.Equal(t, "base caption\n\n#two #three", target.EffectiveContent(post))
}

func TestMediaAssetIsVideo(t *testing.T) {
	assert.True(t, (&MediaAsset{MimeType: "video/mp4"}).IsVideo())
	assert.False(t, (&MediaAsset{MimeType: "image/jpeg"}).IsVideo())
	assert.False(t, (&MediaAsset{MimeType: ""}).IsVideo())
}

func TestPlatformCapabilities(t *testing.T) {
	p := &Platform{SupportedPostTypes: []string{PostTypeImage, PostTypeVideo}}
	assert.True(t, p.SupportsPostType(PostTypeImage))
	assert.False(t, p.SupportsPostType(PostTypeText))
	assert.True(t, p.RequiresMedia())

	p = &Platform{SupportedPostTypes: []string{PostTypeText, PostTypeImage}}
	assert.False(t, p.RequiresMedia())
}
