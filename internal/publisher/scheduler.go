package publisher

import (
	"context"
	"log/slog"
	"sync"

	"crosspost/internal/repository"
)

// Publisher is the piece of the coordinator the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, postID int64) error
}

// Scheduler sweeps for posts whose scheduled time has passed and hands the
// ones it wins the claim for to the coordinator. The claim is a conditional
// status update, so concurrent sweeps and the queue fast path can race over
// the same post and exactly one of them publishes it.
type Scheduler struct {
	posts       repository.PostRepository
	coordinator Publisher
	clock       Clock
}

func NewScheduler(posts repository.PostRepository, coordinator Publisher, clock Clock) *Scheduler {
	return &Scheduler{posts: posts, coordinator: coordinator, clock: clock}
}

// Sweep claims and publishes every due post. Posts another worker claimed
// first are skipped silently.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.clock.Now()
	due, err := s.posts.ListDue(ctx, now)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, post := range due {
		if ctx.Err() != nil {
			break
		}

		claimed, err := s.posts.ClaimForPublishing(ctx, post.ID)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		if !claimed {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.coordinator.Publish(ctx, id); err != nil {
				slog.Info("scheduled publish failed", "post_id", id, "error", err.Error())
			}
		}(post.ID)
	}
	wg.Wait()
	return nil
}
