package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/models"
	"crosspost/internal/platform"
	"crosspost/internal/repository"
	"crosspost/internal/validation"
)

type coordinatorFixture struct {
	coord    *Coordinator
	posts    *fakePostRepo
	targets  *fakeTargetRepo
	accounts *fakeAccountRepo
	history  *fakeHistoryRepo
	clock    *fakeClock
	sleeps   *sleepRecorder
}

type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = append(s.durations, d)
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations...)
}

func newCoordinatorFixture(registry AdapterRegistry, posts *fakePostRepo, targets *fakeTargetRepo, accounts *fakeAccountRepo, assets *fakeAssetRepo) *coordinatorFixture {
	clock := &fakeClock{t: time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)}
	history := &fakeHistoryRepo{}
	sleeps := &sleepRecorder{}

	coord := NewCoordinator(
		posts,
		targets,
		accounts,
		assets,
		history,
		repository.NewPlatformRepository(),
		registry,
		validation.NewEngine(),
		func(account *models.SocialAccount) (string, error) {
			return "token-" + account.Platform, nil
		},
		clock,
	)
	coord.sleep = sleeps.sleep

	return &coordinatorFixture{
		coord:    coord,
		posts:    posts,
		targets:  targets,
		accounts: accounts,
		history:  history,
		clock:    clock,
		sleeps:   sleeps,
	}
}

func connectedAccount(id int64, platformName string) *models.SocialAccount {
	return &models.SocialAccount{
		ID:             id,
		UserID:         1,
		Platform:       platformName,
		AccountID:      "acc",
		AccountName:    "Account " + platformName,
		AccountStatus:  models.AccountStatusConnected,
		PostingEnabled: true,
	}
}

func TestPublishPartialFailure(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hello", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
		&models.PostTarget{ID: 2, PostID: 1, AccountID: 2, Status: models.TargetStatusPending},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "facebook"), connectedAccount(2, "twitter"))

	okAdapter := &fakeAdapter{name: "facebook"}
	limited := &fakeAdapter{name: "twitter", script: []error{platform.RateLimited("slow down")}}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"facebook": okAdapter, "twitter": limited}}

	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	err := f.coord.Publish(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPartiallyPublished, post.Status)
	require.NotNil(t, post.PublishedAt)

	t1 := f.targets.targets[1]
	assert.Equal(t, models.TargetStatusSuccess, t1.Status)
	assert.Equal(t, "ext-42", t1.PlatformPostID)
	assert.Equal(t, "https://example.com/posts/ext-42", t1.PlatformURL)
	require.NotNil(t, t1.PublishedAt)

	t2 := f.targets.targets[2]
	assert.Equal(t, models.TargetStatusFailed, t2.Status)
	assert.Equal(t, 2, t2.RetryCount)
	assert.Equal(t, "platform rate limit exceeded", t2.ErrorMessage)

	assert.Equal(t, 1, okAdapter.Calls())
	assert.Equal(t, 3, limited.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, f.sleeps.all())

	records, err := f.history.ListByPostID(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestValidationFailureMakesNoAdapterCall(t *testing.T) {
	// Instagram has no text-only posts, so a post without media must fail
	// validation before any network call.
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeImage, Content: "hello", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "instagram"))

	adapter := &fakeAdapter{name: "instagram"}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"instagram": adapter}}

	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	err := f.coord.Publish(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, adapter.Calls())
	assert.Equal(t, models.PostStatusFailed, post.Status)

	target := f.targets.targets[1]
	assert.Equal(t, models.TargetStatusFailed, target.Status)
	assert.Contains(t, target.ErrorMessage, "requires at least one image or video")
}

func TestSuccessfulTargetNeverRedispatched(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hello", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
		&models.PostTarget{ID: 2, PostID: 1, AccountID: 2, Status: models.TargetStatusPending},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "facebook"), connectedAccount(2, "twitter"))

	okAdapter := &fakeAdapter{name: "facebook"}
	flaky := &fakeAdapter{name: "twitter", script: []error{platform.Rejected("policy violation")}}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"facebook": okAdapter, "twitter": flaky}}

	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	require.NoError(t, f.coord.Publish(context.Background(), 1))
	assert.Equal(t, models.PostStatusPartiallyPublished, post.Status)
	firstPublishedAt := post.PublishedAt
	require.NotNil(t, firstPublishedAt)

	// Retry: the flaky platform recovers, the claim re-enters publishing.
	flaky.script = nil
	f.clock.Set(f.clock.Now().Add(time.Hour))

	claimed, err := posts.ClaimForPublishing(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, f.coord.Publish(context.Background(), 1))

	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, 1, okAdapter.Calls())
	assert.Equal(t, 2, flaky.Calls())
	assert.Equal(t, firstPublishedAt, post.PublishedAt, "published_at is write-once")
}

func TestPublishRejectsUnclaimedPost(t *testing.T) {
	for _, status := range []string{
		models.PostStatusDraft,
		models.PostStatusScheduled,
		models.PostStatusPublished,
		models.PostStatusCancelled,
	} {
		post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: status}
		posts := newFakePostRepo(post)
		f := newCoordinatorFixture(&fakeRegistry{}, posts, newFakeTargetRepo(), newFakeAccountRepo(), &fakeAssetRepo{})

		err := f.coord.Publish(context.Background(), 1)
		assert.Error(t, err, "status %s", status)
		assert.Equal(t, status, post.Status)
	}
}

func TestAuthExpiredFailsWithoutRetry(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
	)
	account := connectedAccount(1, "linkedin")
	accounts := newFakeAccountRepo(account)

	adapter := &fakeAdapter{name: "linkedin", script: []error{platform.AuthExpired("token revoked")}}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"linkedin": adapter}}

	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	require.NoError(t, f.coord.Publish(context.Background(), 1))

	assert.Equal(t, 1, adapter.Calls())
	assert.Empty(t, f.sleeps.all())
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, models.AccountStatusExpired, account.AccountStatus)

	target := f.targets.targets[1]
	assert.Equal(t, models.TargetStatusFailed, target.Status)
	assert.Equal(t, "account authorization expired, reconnect required", target.ErrorMessage)
}

func TestCancelledTargetCountsAgainstFullPublish(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
		&models.PostTarget{ID: 2, PostID: 1, AccountID: 2, Status: models.TargetStatusCancelled},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "facebook"), connectedAccount(2, "twitter"))

	okAdapter := &fakeAdapter{name: "facebook"}
	unused := &fakeAdapter{name: "twitter"}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"facebook": okAdapter, "twitter": unused}}

	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	require.NoError(t, f.coord.Publish(context.Background(), 1))

	assert.Equal(t, models.PostStatusPartiallyPublished, post.Status)
	assert.Equal(t, 0, unused.Calls())
	assert.Equal(t, models.TargetStatusCancelled, f.targets.targets[2].Status)
}

func TestInterruptedRunLeavesNoPendingTargets(t *testing.T) {
	// Once the post folds to a terminal status, every target must be
	// terminal too. Targets skipped by cancellation fail explicitly instead
	// of lingering in pending.
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusPending},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "facebook"))

	adapter := &fakeAdapter{name: "facebook"}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"facebook": adapter}}
	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.coord.Publish(ctx, 1))

	assert.Equal(t, 0, adapter.Calls())

	target := f.targets.targets[1]
	assert.Equal(t, models.TargetStatusFailed, target.Status)
	assert.Contains(t, target.ErrorMessage, "not attempted")
	assert.Equal(t, models.PostStatusFailed, post.Status)

	// The explicit retry path can still pick the post back up.
	claimed, err := posts.ClaimForPublishing(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestPublishedAtUsesFirstSuccessInstant(t *testing.T) {
	// One target already succeeded on an earlier run; its success instant,
	// not the end of this pass, becomes the post's published_at.
	firstSuccess := time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	targets := newFakeTargetRepo(
		&models.PostTarget{ID: 1, PostID: 1, AccountID: 1, Status: models.TargetStatusSuccess, PublishedAt: &firstSuccess},
		&models.PostTarget{ID: 2, PostID: 1, AccountID: 2, Status: models.TargetStatusPending},
	)
	accounts := newFakeAccountRepo(connectedAccount(1, "facebook"), connectedAccount(2, "twitter"))

	okAdapter := &fakeAdapter{name: "twitter"}
	registry := &fakeRegistry{adapters: map[string]platform.Adapter{"twitter": okAdapter}}
	f := newCoordinatorFixture(registry, posts, targets, accounts, &fakeAssetRepo{})

	require.NoError(t, f.coord.Publish(context.Background(), 1))

	assert.Equal(t, models.PostStatusPublished, post.Status)
	require.NotNil(t, post.PublishedAt)
	assert.Equal(t, firstSuccess, *post.PublishedAt)
}

func TestPublishWithoutTargetsFails(t *testing.T) {
	post := &models.Post{ID: 1, UserID: 1, PostType: models.PostTypeText, Content: "hi", Status: models.PostStatusPublishing}
	posts := newFakePostRepo(post)
	f := newCoordinatorFixture(&fakeRegistry{}, posts, newFakeTargetRepo(), newFakeAccountRepo(), &fakeAssetRepo{})

	require.NoError(t, f.coord.Publish(context.Background(), 1))
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Nil(t, post.PublishedAt)
}
