package publisher

import (
	"errors"
	"fmt"

	"crosspost/internal/models"
)

var ErrPostImmutable = errors.New("post content is immutable once publishing has started")

// postTransitions is the full lifecycle graph. Published and cancelled are
// terminal; failed and partially_published can be retried back through
// publishing.
var postTransitions = map[string][]string{
	models.PostStatusDraft:              {models.PostStatusScheduled, models.PostStatusPublishing, models.PostStatusCancelled},
	models.PostStatusScheduled:          {models.PostStatusDraft, models.PostStatusPublishing, models.PostStatusCancelled},
	models.PostStatusPublishing:         {models.PostStatusPublished, models.PostStatusPartiallyPublished, models.PostStatusFailed},
	models.PostStatusPartiallyPublished: {models.PostStatusPublishing},
	models.PostStatusFailed:             {models.PostStatusPublishing},
	models.PostStatusPublished:          {},
	models.PostStatusCancelled:          {},
}

func CanTransition(from, to string) bool {
	for _, next := range postTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition mutates the post status or reports why it cannot.
func Transition(post *models.Post, to string) error {
	if !CanTransition(post.Status, to) {
		return fmt.Errorf("cannot transition post %d from %s to %s", post.ID, post.Status, to)
	}
	post.Status = to
	return nil
}

// IsTerminal reports whether the lifecycle takes no further automatic
// action. Failed and partially published posts are terminal too, but may
// still be pushed back through publishing by an explicit retry.
func IsTerminal(status string) bool {
	switch status {
	case models.PostStatusPublished, models.PostStatusPartiallyPublished,
		models.PostStatusFailed, models.PostStatusCancelled:
		return true
	}
	return false
}

// IsPublishedTerminal reports whether at least one target succeeded, meaning
// the post now exists on some platform and its content can no longer change.
func IsPublishedTerminal(status string) bool {
	return status == models.PostStatusPublished || status == models.PostStatusPartiallyPublished
}

// EnsureEditable gates content updates. Only drafts and scheduled posts may
// be edited; anything that has entered publishing is frozen.
func EnsureEditable(post *models.Post) error {
	if post.Status == models.PostStatusDraft || post.Status == models.PostStatusScheduled {
		return nil
	}
	return ErrPostImmutable
}

// AggregateStatus folds per-target outcomes into the post status. A
// cancelled target counts against a clean publish, so one success plus one
// cancelled target is a partial publish, not a full one. A target that has
// not reached a terminal status keeps the post in publishing.
func AggregateStatus(targets []*models.PostTarget) string {
	if len(targets) == 0 {
		return models.PostStatusFailed
	}

	var success, cancelled, settled int
	for _, t := range targets {
		switch t.Status {
		case models.TargetStatusSuccess:
			success++
			settled++
		case models.TargetStatusCancelled:
			cancelled++
			settled++
		case models.TargetStatusFailed:
			settled++
		}
	}
	switch {
	case settled != len(targets):
		return models.PostStatusPublishing
	case success == len(targets):
		return models.PostStatusPublished
	case success > 0:
		return models.PostStatusPartiallyPublished
	case cancelled == len(targets):
		return models.PostStatusCancelled
	default:
		return models.PostStatusFailed
	}
}
