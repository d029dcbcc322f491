package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crosspost/internal/models"
	"crosspost/internal/platform"
	"crosspost/internal/repository"
	"crosspost/internal/validation"
)

const (
	maxAttempts    = 3
	initialBackoff = 2 * time.Second
	maxParallel    = 10
)

// CredentialFunc resolves the decrypted access token for an account. The
// coordinator never decrypts tokens itself so key handling stays upstream.
type CredentialFunc func(account *models.SocialAccount) (string, error)

// AdapterRegistry selects the adapter for a platform name.
type AdapterRegistry interface {
	Get(platform string) (platform.Adapter, bool)
}

// Coordinator fans a claimed post out to its targets, runs each target's
// validation and publish attempts concurrently, and folds the per-target
// outcomes back into the post status.
type Coordinator struct {
	posts      repository.PostRepository
	targets    repository.PostTargetRepository
	accounts   repository.SocialAccountRepository
	assets     repository.MediaAssetRepository
	history    repository.PostingHistoryRepository
	platforms  repository.PlatformRepository
	registry   AdapterRegistry
	engine     *validation.Engine
	credential CredentialFunc
	clock      Clock
	sleep      func(time.Duration)
}

func NewCoordinator(
	posts repository.PostRepository,
	targets repository.PostTargetRepository,
	accounts repository.SocialAccountRepository,
	assets repository.MediaAssetRepository,
	history repository.PostingHistoryRepository,
	platforms repository.PlatformRepository,
	registry AdapterRegistry,
	engine *validation.Engine,
	credential CredentialFunc,
	clock Clock,
) *Coordinator {
	return &Coordinator{
		posts:      posts,
		targets:    targets,
		accounts:   accounts,
		assets:     assets,
		history:    history,
		platforms:  platforms,
		registry:   registry,
		engine:     engine,
		credential: credential,
		clock:      clock,
		sleep:      time.Sleep,
	}
}

// Publish runs the full publish pass for a post already claimed into
// publishing. Targets that have reached success or cancelled are never
// dispatched again, so retrying a partially published post only touches the
// targets that still need work.
func (c *Coordinator) Publish(ctx context.Context, postID int64) error {
	post, err := c.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d not found", postID)
	}
	if post.Status != models.PostStatusPublishing {
		return fmt.Errorf("post %d is %s, expected %s", postID, post.Status, models.PostStatusPublishing)
	}

	targets, err := c.targets.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return c.posts.SetOutcome(ctx, postID, models.PostStatusFailed, nil)
	}

	media, err := c.assets.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}

	statuses := make([]string, len(targets))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, target := range targets {
		switch target.Status {
		case models.TargetStatusSuccess, models.TargetStatusCancelled:
			statuses[i] = target.Status
			continue
		}
		if ctx.Err() != nil {
			// A target skipped by cancellation still reaches a terminal
			// status, so the post never folds over a pending target. The
			// explicit retry path picks these up again.
			target.Status = models.TargetStatusFailed
			target.ErrorMessage = "not attempted, publish run interrupted"
			if err := c.targets.Update(context.WithoutCancel(ctx), target); err != nil {
				slog.Info(err.Error())
			}
			statuses[i] = target.Status
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, target *models.PostTarget) {
			defer wg.Done()
			defer func() { <-sem }()
			statuses[i] = c.publishTarget(ctx, post, target, media)
		}(i, target)
	}
	wg.Wait()

	agg := aggregateFromStatuses(statuses)
	return c.posts.SetOutcome(context.WithoutCancel(ctx), postID, agg, earliestPublishedAt(targets))
}

// earliestPublishedAt picks the first success instant across targets. The
// post's published_at records the moment it first existed on any platform,
// not the end of the publish pass.
func earliestPublishedAt(targets []*models.PostTarget) *time.Time {
	var earliest *time.Time
	for _, t := range targets {
		if t.PublishedAt == nil {
			continue
		}
		if earliest == nil || t.PublishedAt.Before(*earliest) {
			earliest = t.PublishedAt
		}
	}
	return earliest
}

func aggregateFromStatuses(statuses []string) string {
	targets := make([]*models.PostTarget, len(statuses))
	for i, s := range statuses {
		targets[i] = &models.PostTarget{Status: s}
	}
	return AggregateStatus(targets)
}

// publishTarget resolves the account, validates, and runs the retry loop for
// one target. It always leaves the target in a terminal status and returns
// that status.
func (c *Coordinator) publishTarget(ctx context.Context, post *models.Post, target *models.PostTarget, media []*models.MediaAsset) string {
	target.Status = models.TargetStatusPublishing
	if err := c.targets.Update(ctx, target); err != nil {
		slog.Info(err.Error())
	}

	account, err := c.accounts.GetByID(ctx, target.AccountID)
	if err != nil || account == nil {
		return c.failTarget(ctx, post, target, account, 0, string(platform.ErrKindUnknown), "social account not found")
	}

	spec := c.platforms.GetByName(account.Platform)
	if spec == nil {
		return c.failTarget(ctx, post, target, account, 0, string(platform.ErrKindUnknown), "unsupported platform "+account.Platform)
	}

	result := c.engine.Validate(post, target, media, account, spec)
	for _, w := range result.Warnings {
		slog.Info("validation warning", "post_id", post.ID, "account_id", account.ID, "code", w.Code, "message", w.Message)
	}
	if !result.Valid() {
		return c.failTarget(ctx, post, target, account, 0, "validation_failed", result.FirstError())
	}

	adapter, ok := c.registry.Get(account.Platform)
	if !ok {
		return c.failTarget(ctx, post, target, account, 0, string(platform.ErrKindUnknown), "no adapter for platform "+account.Platform)
	}

	token, err := c.credential(account)
	if err != nil {
		return c.failTarget(ctx, post, target, account, 0, string(platform.ErrKindAuthExpired), "credential unavailable: "+err.Error())
	}

	req := &platform.PublishRequest{
		AccountID:    account.AccountID,
		AccountName:  account.AccountName,
		AccessToken:  token,
		PostType:     post.PostType,
		Content:      target.EffectiveContent(post),
		Media:        toAdapterMedia(media),
		FirstComment: post.FirstComment,
	}

	var lastErr *platform.PublishError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(initialBackoff << (attempt - 2))
			target.RetryCount++
		}

		res, err := adapter.Publish(ctx, req)
		if err == nil {
			c.recordAttempt(ctx, post, target, account, attempt, "", "")
			now := c.clock.Now()
			target.Status = models.TargetStatusSuccess
			target.PlatformPostID = res.PlatformPostID
			target.PlatformURL = res.PlatformURL
			target.ErrorMessage = ""
			target.PublishedAt = &now
			if err := c.targets.Update(ctx, target); err != nil {
				slog.Info(err.Error())
			}
			return target.Status
		}

		pe, ok := platform.AsPublishError(err)
		if !ok {
			pe = platform.Unknown(err.Error())
		}
		lastErr = pe
		c.recordAttempt(ctx, post, target, account, attempt, string(pe.Kind), pe.RawMessage)
		slog.Info("publish attempt failed", "post_id", post.ID, "account_id", account.ID, "platform", account.Platform, "attempt", attempt, "kind", string(pe.Kind))

		if pe.Kind == platform.ErrKindAuthExpired {
			if err := c.accounts.UpdateStatus(ctx, account.ID, models.AccountStatusExpired); err != nil {
				slog.Info(err.Error())
			}
		}
		if !pe.Retryable || ctx.Err() != nil {
			break
		}
	}

	target.Status = models.TargetStatusFailed
	target.ErrorMessage = lastErr.Reason()
	if err := c.targets.Update(ctx, target); err != nil {
		slog.Info(err.Error())
	}
	return target.Status
}

// failTarget terminates a target before any adapter call was made, recording
// a single history row with attempt 0.
func (c *Coordinator) failTarget(ctx context.Context, post *models.Post, target *models.PostTarget, account *models.SocialAccount, attempt int, kind, msg string) string {
	c.recordAttempt(ctx, post, target, account, attempt, kind, msg)
	target.Status = models.TargetStatusFailed
	target.ErrorMessage = msg
	if err := c.targets.Update(ctx, target); err != nil {
		slog.Info(err.Error())
	}
	return target.Status
}

func (c *Coordinator) recordAttempt(ctx context.Context, post *models.Post, target *models.PostTarget, account *models.SocialAccount, attempt int, kind, msg string) {
	ph := &models.PostingHistory{
		UserID:       post.UserID,
		PostID:       post.ID,
		AccountID:    target.AccountID,
		Attempt:      attempt,
		ErrorKind:    kind,
		ErrorMessage: msg,
	}
	if account != nil {
		ph.Platform = account.Platform
	}
	if _, err := c.history.Create(ctx, ph); err != nil {
		slog.Info(err.Error())
	}
}

func toAdapterMedia(assets []*models.MediaAsset) []platform.Media {
	media := make([]platform.Media, 0, len(assets))
	for _, a := range assets {
		media = append(media, platform.Media{
			URL:      a.FileURL,
			MimeType: a.MimeType,
			FileSize: a.FileSize,
			Width:    a.Width,
			Height:   a.Height,
		})
	}
	return media
}
