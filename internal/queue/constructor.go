package queue

import (
	"crosspost/internal/publisher"
	"crosspost/internal/repository"
)

// Queue handles delayed publish tasks. It is the asynq fast path for
// scheduled posts; the cron sweep covers anything the queue misses.
type Queue struct {
	pr          repository.PostRepository
	coordinator publisher.Publisher
	clock       publisher.Clock
}

func NewQueue(pr repository.PostRepository, coordinator publisher.Publisher, clock publisher.Clock) *Queue {
	return &Queue{
		pr:          pr,
		coordinator: coordinator,
		clock:       clock,
	}
}

const TaskTypePublishPost = "publish:post"

// Immediate marks publish-now and retry tasks, which fire regardless of the
// post's schedule. Timed tasks only fire while the post is still due.
type PublishPostPayload struct {
	PostID    int64 `json:"post_id"`
	Immediate bool  `json:"immediate"`
}
