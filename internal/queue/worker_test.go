package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crosspost/internal/models"
	"crosspost/internal/repository"
)

type stubPostRepo struct {
	posts map[int64]*models.Post
}

var _ repository.PostRepository = (*stubPostRepo)(nil)

func newStubPostRepo(posts ...*models.Post) *stubPostRepo {
	r := &stubPostRepo{posts: make(map[int64]*models.Post)}
	for _, p := range posts {
		r.posts[p.ID] = p
	}
	return r
}

func (r *stubPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	post.ID = int64(len(r.posts) + 1)
	r.posts[post.ID] = post
	return post.ID, nil
}

func (r *stubPostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return r.posts[id], nil
}

func (r *stubPostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (r *stubPostRepo) ListDue(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (r *stubPostRepo) ClaimForPublishing(ctx context.Context, id int64) (bool, error) {
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

func (r *stubPostRepo) Update(ctx context.Context, post *models.Post) error {
	r.posts[post.ID] = post
	return nil
}

func (r *stubPostRepo) UpdateStatus(ctx context.Context, status string, id int64) error {
	if p, ok := r.posts[id]; ok {
		p.Status = status
	}
	return nil
}

func (r *stubPostRepo) SetOutcome(ctx context.Context, id int64, status string, publishedAt *time.Time) error {
	if p, ok := r.posts[id]; ok {
		p.Status = status
	}
	return nil
}

func (r *stubPostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *stubPostRepo) Remove(ctx context.Context, id int64) error {
	delete(r.posts, id)
	return nil
}

type countingPublisher struct {
	mu      sync.Mutex
	postIDs []int64
}

func (p *countingPublisher) Publish(ctx context.Context, postID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.postIDs = append(p.postIDs, postID)
	return nil
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.postIDs)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func publishTask(t *testing.T, payload PublishPostPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypePublishPost, data)
}

func TestStaleTaskSkipsRescheduledPost(t *testing.T) {
	// The post was rescheduled a day later after the original task was
	// enqueued. The old task fires on the old delay and must not publish.
	now := time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)
	post := &models.Post{ID: 1, UserID: 1, Status: models.PostStatusScheduled, ScheduledAt: &later}

	repo := newStubPostRepo(post)
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: now})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 1}))
	require.NoError(t, err)

	assert.Equal(t, 0, pub.count())
	assert.Equal(t, models.PostStatusScheduled, post.Status)
}

func TestStaleTaskSkipsUnscheduledPost(t *testing.T) {
	// Unscheduling pulls the post back to draft; the orphaned task must not
	// publish it even though drafts are claimable by the retry path.
	now := time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)
	post := &models.Post{ID: 1, UserID: 1, Status: models.PostStatusDraft}

	repo := newStubPostRepo(post)
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: now})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 1}))
	require.NoError(t, err)

	assert.Equal(t, 0, pub.count())
	assert.Equal(t, models.PostStatusDraft, post.Status)
}

func TestDueTaskClaimsAndPublishes(t *testing.T) {
	now := time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)
	due := now.Add(-time.Minute)
	post := &models.Post{ID: 1, UserID: 1, Status: models.PostStatusScheduled, ScheduledAt: &due}

	repo := newStubPostRepo(post)
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: now})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 1}))
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, pub.postIDs)
	assert.Equal(t, models.PostStatusPublishing, post.Status)
}

func TestImmediateTaskRetriesFailedPost(t *testing.T) {
	now := time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)
	post := &models.Post{ID: 1, UserID: 1, Status: models.PostStatusFailed}

	repo := newStubPostRepo(post)
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: now})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 1, Immediate: true}))
	require.NoError(t, err)

	assert.Equal(t, 1, pub.count())
	assert.Equal(t, models.PostStatusPublishing, post.Status)
}

func TestTaskSkipsAlreadyClaimedPost(t *testing.T) {
	now := time.Date(2025, 1, 10, 17, 30, 0, 0, time.UTC)
	post := &models.Post{ID: 1, UserID: 1, Status: models.PostStatusPublishing}

	repo := newStubPostRepo(post)
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: now})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 1, Immediate: true}))
	require.NoError(t, err)
	assert.Equal(t, 0, pub.count())
}

func TestTaskSkipsDeletedPost(t *testing.T) {
	repo := newStubPostRepo()
	pub := &countingPublisher{}
	q := NewQueue(repo, pub, fixedClock{t: time.Now()})

	err := q.HandlePublishPostTask(context.Background(), publishTask(t, PublishPostPayload{PostID: 99}))
	require.NoError(t, err)
	assert.Equal(t, 0, pub.count())
}
