package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"crosspost/internal/models"
)

// HandlePublishPostTask claims the post and runs one publish pass. The claim
// shares the conditional update with the cron sweep, so when both fire for
// the same post only the winner proceeds; the loser returns nil so asynq does
// not retry a post someone else is already publishing.
//
// A timed task can be stale: rescheduling or unscheduling a post leaves the
// old task sitting in the queue. The post's current schedule decides whether
// it fires, not the delay the task was enqueued with.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	post, err := q.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("publish task skipped, post no longer exists", "post_id", payload.PostID)
		return nil
	}
	if !payload.Immediate {
		if post.Status != models.PostStatusScheduled || post.ScheduledAt == nil || post.ScheduledAt.After(q.clock.Now()) {
			slog.Info("publish task skipped, post no longer due", "post_id", payload.PostID, "status", post.Status)
			return nil
		}
	}

	claimed, err := q.pr.ClaimForPublishing(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("publish task skipped, post already claimed or no longer due", "post_id", payload.PostID)
		return nil
	}

	return q.coordinator.Publish(ctx, payload.PostID)
}
