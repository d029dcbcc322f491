package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.PostStatusDraft, models.PostStatusScheduled, true},
		{models.PostStatusDraft, models.PostStatusPublishing, true},
		{models.PostStatusDraft, models.PostStatusCancelled, true},
		{models.PostStatusScheduled, models.PostStatusDraft, true},
		{models.PostStatusScheduled, models.PostStatusPublishing, true},
		{models.PostStatusScheduled, models.PostStatusCancelled, true},
		{models.PostStatusPublishing, models.PostStatusPublished, true},
		{models.PostStatusPublishing, models.PostStatusPartiallyPublished, true},
		{models.PostStatusPublishing, models.PostStatusFailed, true},
		{models.PostStatusFailed, models.PostStatusPublishing, true},
		{models.PostStatusPartiallyPublished, models.PostStatusPublishing, true},

		{models.PostStatusDraft, models.PostStatusPublished, false},
		{models.PostStatusPublishing, models.PostStatusCancelled, false},
		{models.PostStatusPublished, models.PostStatusPublishing, false},
		{models.PostStatusPublished, models.PostStatusDraft, false},
		{models.PostStatusCancelled, models.PostStatusScheduled, false},
		{models.PostStatusFailed, models.PostStatusCancelled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransitionMutatesOnlyWhenLegal(t *testing.T) {
	post := &models.Post{ID: 1, Status: models.PostStatusDraft}

	require.NoError(t, Transition(post, models.PostStatusScheduled))
	assert.Equal(t, models.PostStatusScheduled, post.Status)

	err := Transition(post, models.PostStatusPublished)
	require.Error(t, err)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
}

func TestEnsureEditableRejectsPublishedPostsConsistently(t *testing.T) {
	assert.NoError(t, EnsureEditable(&models.Post{Status: models.PostStatusDraft}))
	assert.NoError(t, EnsureEditable(&models.Post{Status: models.PostStatusScheduled}))

	// Rejection is idempotent: the same error every time.
	frozen := &models.Post{Status: models.PostStatusPublished}
	first := EnsureEditable(frozen)
	second := EnsureEditable(frozen)
	require.Error(t, first)
	assert.Equal(t, first, second)
	assert.ErrorIs(t, first, ErrPostImmutable)

	assert.ErrorIs(t, EnsureEditable(&models.Post{Status: models.PostStatusPublishing}), ErrPostImmutable)
	assert.ErrorIs(t, EnsureEditable(&models.Post{Status: models.PostStatusPartiallyPublished}), ErrPostImmutable)
	assert.ErrorIs(t, EnsureEditable(&models.Post{Status: models.PostStatusFailed}), ErrPostImmutable)
}

func TestAggregateStatus(t *testing.T) {
	mk := func(statuses ...string) []*models.PostTarget {
		out := make([]*models.PostTarget, len(statuses))
		for i, s := range statuses {
			out[i] = &models.PostTarget{Status: s}
		}
		return out
	}

	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all success", []string{models.TargetStatusSuccess, models.TargetStatusSuccess}, models.PostStatusPublished},
		{"mixed success and failed", []string{models.TargetStatusSuccess, models.TargetStatusFailed}, models.PostStatusPartiallyPublished},
		{"success with cancelled", []string{models.TargetStatusSuccess, models.TargetStatusCancelled}, models.PostStatusPartiallyPublished},
		{"all failed", []string{models.TargetStatusFailed, models.TargetStatusFailed}, models.PostStatusFailed},
		{"failed and cancelled", []string{models.TargetStatusFailed, models.TargetStatusCancelled}, models.PostStatusFailed},
		{"all cancelled", []string{models.TargetStatusCancelled}, models.PostStatusCancelled},
		{"pending target keeps publishing", []string{models.TargetStatusPending, models.TargetStatusFailed}, models.PostStatusPublishing},
		{"publishing target keeps publishing", []string{models.TargetStatusSuccess, models.TargetStatusPublishing}, models.PostStatusPublishing},
		{"no targets", nil, models.PostStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(mk(tt.statuses...)))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.PostStatusPublished))
	assert.True(t, IsTerminal(models.PostStatusPartiallyPublished))
	assert.True(t, IsTerminal(models.PostStatusFailed))
	assert.True(t, IsTerminal(models.PostStatusCancelled))
	assert.False(t, IsTerminal(models.PostStatusDraft))
	assert.False(t, IsTerminal(models.PostStatusScheduled))
	assert.False(t, IsTerminal(models.PostStatusPublishing))

	assert.True(t, IsPublishedTerminal(models.PostStatusPublished))
	assert.True(t, IsPublishedTerminal(models.PostStatusPartiallyPublished))
	assert.False(t, IsPublishedTerminal(models.PostStatusFailed))
}
