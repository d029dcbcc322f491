package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"crosspost/internal/models"
	"crosspost/internal/publisher"
	"crosspost/internal/repository"
)

// TokenRefresher renews the OAuth credential for one account in place.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, account *models.SocialAccount) error
}

// TokenRefreshJob renews credentials that expire within the lookahead
// window. Accounts whose refresh fails are flipped to expired so publishes
// fail fast with an auth error instead of a confusing platform rejection.
type TokenRefreshJob struct {
	sr        repository.SocialAccountRepository
	refresher TokenRefresher
	clock     publisher.Clock
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, refresher TokenRefresher, clock publisher.Clock) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:        sr,
		refresher: refresher,
		clock:     clock,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := c.clock.Now()
	lookahead := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListExpiring(ctx, currentTime, lookahead)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresher.RefreshToken(ctx, acc); err != nil {
				slog.Info("token refresh failed", "account_id", acc.ID, "platform", acc.Platform, "error", err.Error())
				if err := c.sr.UpdateStatus(ctx, acc.ID, models.AccountStatusExpired); err != nil {
					slog.Info(err.Error())
				}
			}
		}(acc)
	}
	wg.Wait()
}
