package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"crosspost/internal/models"
)

type PostTargetRepository interface {
	Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error)
	Get(ctx context.Context, postID, accountID int64) (*models.PostTarget, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error)
	Update(ctx context.Context, target *models.PostTarget) error
	CancelPending(ctx context.Context, postID int64) error
}

type postTargetRepository struct {
	db *sql.DB
}

func NewPostTargetRepository(db *sql.DB) PostTargetRepository {
	return &postTargetRepository{db: db}
}

const targetColumns = `id, post_id, account_id, content_override, hashtags_override, status, platform_post_id, platform_url, error_message, retry_count, published_at, created_at, updated_at`

func (r *postTargetRepository) Create(ctx context.Context, tx *sql.Tx, target *models.PostTarget) (int64, error) {
	query := `
		INSERT INTO post_targets (post_id, account_id, content_override, hashtags_override, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	var err error

	args := []interface{}{target.PostID, target.AccountID, target.ContentOverride, pq.Array(target.HashtagsOverride), target.Status}
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func scanTarget(row interface{ Scan(...interface{}) error }) (*models.PostTarget, error) {
	var t models.PostTarget
	err := row.Scan(&t.ID, &t.PostID, &t.AccountID, &t.ContentOverride, pq.Array(&t.HashtagsOverride),
		&t.Status, &t.PlatformPostID, &t.PlatformURL, &t.ErrorMessage, &t.RetryCount,
		&t.PublishedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *postTargetRepository) Get(ctx context.Context, postID, accountID int64) (*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE post_id = $1 AND account_id = $2`
	target, err := scanTarget(r.db.QueryRowContext(ctx, query, postID, accountID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return target, nil
}

func (r *postTargetRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostTarget, error) {
	query := `SELECT ` + targetColumns + ` FROM post_targets WHERE post_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.PostTarget
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

func (r *postTargetRepository) Update(ctx context.Context, target *models.PostTarget) error {
	query := `
		UPDATE post_targets
		SET status = $1,
			platform_post_id = $2,
			platform_url = $3,
			error_message = $4,
			retry_count = $5,
			published_at = $6,
			updated_at = $7
		WHERE id = $8
	`
	_, err := r.db.ExecContext(ctx, query, target.Status, target.PlatformPostID, target.PlatformURL,
		target.ErrorMessage, target.RetryCount, target.PublishedAt, time.Now().UTC(), target.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// CancelPending flips targets that never started to cancelled. Targets
// already publishing or finished keep their status.
func (r *postTargetRepository) CancelPending(ctx context.Context, postID int64) error {
	query := `
		UPDATE post_targets
		SET status = $1, updated_at = $2
		WHERE post_id = $3 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.TargetStatusCancelled, time.Now().UTC(), postID, models.TargetStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
