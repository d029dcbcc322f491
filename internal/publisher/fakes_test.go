package publisher

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"crosspost/internal/models"
	"crosspost/internal/platform"
	"crosspost/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakePostRepo struct {
	mu    sync.Mutex
	posts map[int64]*models.Post
}

var _ repository.PostRepository = (*fakePostRepo)(nil)

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post.ID = int64(len(r.posts) + 1)
	r.posts[post.ID] = post
	return post.ID, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[id], nil
}

func (r *fakePostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePostRepo) ClaimForPublishing(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return false, nil
	}
	switch p.Status {
	case models.PostStatusScheduled, models.PostStatusDraft,
		models.PostStatusFailed, models.PostStatusPartiallyPublished:
		p.Status = models.PostStatusPublishing
		return true, nil
	}
	return false, nil
}

func (r *fakePostRepo) Update(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[post.ID] = post
	return nil
}

func (r *fakePostRepo) UpdateStatus(ctx context.Context, status string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[id]; ok {
		p.Status = status
	}
	return nil
}

func (r *fakePostRepo) SetOutcome(ctx context.Context, id int64, status string, publishedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil
	}
	p.Status = status
	if p.PublishedAt == nil && publishedAt != nil {
		p.PublishedAt = publishedAt
	}
	return nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *fakePostRepo) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
	return nil
}

type fakeTargetRepo struct {
	mu      sync.Mutex
	targets map[int64]*models.PostTarget
}

var _ repository.PostTargetRepository = (*fakeTargetRepo)(nil)

func newFakeTargetRepo(targets ...*models.PostTarget) *fakeTargetRepo {
	r := &fakeTargetRepo{targets: make(map[int64]*models.PostTarget)}
	for _, t := range targets {
		r.targets[t.ID] = t
	}
	return r
}

func (r *fakeTargetRepo) Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target.ID = int64(len(r.targets) + 1)
	r.targets[target.ID] = target
	return target.ID, nil
}

func (r *fakeTargetRepo) Get(ctx context.Context, postID, accountID int64) (*models.PostTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.PostID == postID && t.AccountID == accountID {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeTargetRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostTarget
	for _, t := range r.targets {
		if t.PostID == postID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTargetRepo) Update(ctx context.Context, target *models.PostTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target.ID] = target
	return nil
}

func (r *fakeTargetRepo) CancelPending(ctx context.Context, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.PostID == postID && t.Status == models.TargetStatusPending {
			t.Status = models.TargetStatusCancelled
		}
	}
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*models.SocialAccount
}

var _ repository.SocialAccountRepository = (*fakeAccountRepo)(nil)

func newFakeAccountRepo(accounts ...*models.SocialAccount) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[int64]*models.SocialAccount)}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sa.ID = int64(len(r.accounts) + 1)
	r.accounts[sa.ID] = sa
	return sa.ID, nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id], nil
}

func (r *fakeAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SocialAccount
	for _, a := range r.accounts {
		if a.AccountStatus == models.AccountStatusConnected &&
			a.TokenExpiresAt.After(initialTime) && a.TokenExpiresAt.Before(finalTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	return ok && a.UserID == userID, nil
}

func (r *fakeAccountRepo) SetToken(ctx context.Context, userID int64, oldAccessToken string, sa *models.SocialAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[sa.ID] = sa
	return nil
}

func (r *fakeAccountRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.AccountStatus = status
	}
	return nil
}

func (r *fakeAccountRepo) SetPostingEnabled(ctx context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.PostingEnabled = enabled
	}
	return nil
}

type fakeAssetRepo struct {
	assets map[int64][]*models.MediaAsset
}

var _ repository.MediaAssetRepository = (*fakeAssetRepo)(nil)

func (r *fakeAssetRepo) Create(ctx context.Context, tx *sql.Tx, ma *models.MediaAsset) (int64, error) {
	return 0, nil
}

func (r *fakeAssetRepo) GetByID(ctx context.Context, id int64) (*models.MediaAsset, error) {
	return nil, nil
}

func (r *fakeAssetRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.MediaAsset, error) {
	if r.assets == nil {
		return nil, nil
	}
	return r.assets[postID], nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	records []*models.PostingHistory
}

var _ repository.PostingHistoryRepository = (*fakeHistoryRepo)(nil)

func (r *fakeHistoryRepo) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, ph)
	return int64(len(r.records)), nil
}

func (r *fakeHistoryRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PostingHistory
	for _, ph := range r.records {
		if ph.PostID == postID {
			out = append(out, ph)
		}
	}
	return out, nil
}

// fakeAdapter replays a scripted sequence of errors, then keeps returning
// the last entry. An empty script means every call succeeds.
type fakeAdapter struct {
	mu     sync.Mutex
	name   string
	script []error
	calls  int
}

func (a *fakeAdapter) Platform() string { return a.name }

func (a *fakeAdapter) Publish(ctx context.Context, req *platform.PublishRequest) (*platform.PublishResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.calls
	a.calls++

	var err error
	if idx < len(a.script) {
		err = a.script[idx]
	} else if len(a.script) > 0 {
		err = a.script[len(a.script)-1]
	}
	if err != nil {
		return nil, err
	}
	return &platform.PublishResult{
		PlatformPostID: "ext-42",
		PlatformURL:    "https://example.com/posts/ext-42",
	}, nil
}

func (a *fakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeRegistry struct {
	adapters map[string]platform.Adapter
}

func (r *fakeRegistry) Get(name string) (platform.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}
