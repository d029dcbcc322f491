package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRetryability(t *testing.T) {
	assert.False(t, AuthExpired("x").Retryable)
	assert.True(t, RateLimited("x").Retryable)
	assert.True(t, TransientNetwork("x").Retryable)
	assert.False(t, Rejected("x").Retryable)
	assert.False(t, Unknown("x").Retryable)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrKindAuthExpired},
		{429, ErrKindRateLimited},
		{500, ErrKindTransientNetwork},
		{502, ErrKindTransientNetwork},
		{503, ErrKindTransientNetwork},
		{400, ErrKindPlatformRejected},
		{422, ErrKindPlatformRejected},
		{404, ErrKindUnknown},
	}

	for _, tt := range tests {
		got := classifyStatus(tt.status, "body")
		assert.Equal(t, tt.want, got.Kind, "status %d", tt.status)
	}
}

func TestAsPublishErrorUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("publishing: %w", RateLimited("slow down"))

	pe, ok := AsPublishError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrKindRateLimited, pe.Kind)

	_, ok = AsPublishError(errors.New("plain"))
	assert.False(t, ok)
}

func TestReasonIsOperatorFacing(t *testing.T) {
	assert.Equal(t, "account authorization expired, reconnect required", AuthExpired("401 oauth").Reason())
	assert.Equal(t, "platform rate limit exceeded", RateLimited("429").Reason())
	assert.Contains(t, Rejected("duplicate content").Reason(), "duplicate content")
	assert.Contains(t, Unknown("weird body").Reason(), "weird body")
}

func TestRegistryCoversAllPlatforms(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"facebook", "instagram", "linkedin", "tiktok", "twitter", "youtube"} {
		a, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, a.Platform())
	}

	_, ok := r.Get("myspace")
	assert.False(t, ok)
}

func TestTikTokErrorMapping(t *testing.T) {
	a := NewTikTokAdapter()

	tests := []struct {
		status int
		code   string
		want   ErrorKind
	}{
		{401, "access_token_invalid", ErrKindAuthExpired},
		{200, "access_token_invalid", ErrKindAuthExpired},
		{200, "scope_not_authorized", ErrKindAuthExpired},
		{429, "rate_limit_exceeded", ErrKindRateLimited},
		{200, "spam_risk_too_many_posts", ErrKindRateLimited},
		{500, "internal_error", ErrKindTransientNetwork},
		{400, "invalid_params", ErrKindPlatformRejected},
		{200, "spam_risk_user_banned_from_posting", ErrKindPlatformRejected},
		{200, "something_else", ErrKindUnknown},
	}

	for _, tt := range tests {
		got := a.mapError(tt.status, tt.code, "msg")
		assert.Equal(t, tt.want, got.Kind, "status %d code %s", tt.status, tt.code)
	}
}

func TestTikTokRequiresMedia(t *testing.T) {
	a := NewTikTokAdapter()

	_, err := a.Publish(context.Background(), &PublishRequest{Content: "text only"})
	pe, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindPlatformRejected, pe.Kind)
}
