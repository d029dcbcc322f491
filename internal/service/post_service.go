package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"crosspost/internal/models"
	"crosspost/internal/publisher"
	"crosspost/internal/repository"
	"crosspost/internal/transfer"
)

const scheduledTimeLayout = "2006-01-02T15:04"

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, time.Duration, error)
	Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error
	Schedule(ctx context.Context, userID, postID int64, req *transfer.ScheduleRequest) (time.Duration, error)
	Unschedule(ctx context.Context, userID, postID int64) error
	Cancel(ctx context.Context, userID, postID int64) error
	PublishNow(ctx context.Context, userID, postID int64) error
	Duplicate(ctx context.Context, userID, postID int64) (int64, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error)
	Outcome(ctx context.Context, postID, userID int64) (*transfer.PostOutcome, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db    *sql.DB
	pr    repository.PostRepository
	pt    repository.PostTargetRepository
	ac    repository.SocialAccountRepository
	ma    repository.MediaAssetRepository
	pm    repository.PostMediaRepository
	ph    repository.PostingHistoryRepository
	r2    *R2Service
	clock publisher.Clock
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	pt repository.PostTargetRepository,
	ac repository.SocialAccountRepository,
	ma repository.MediaAssetRepository,
	pm repository.PostMediaRepository,
	ph repository.PostingHistoryRepository,
	r2 *R2Service,
	clock publisher.Clock) PostService {
	return &postService{
		db:    db,
		pr:    pr,
		pt:    pt,
		ac:    ac,
		ma:    ma,
		pm:    pm,
		ph:    ph,
		r2:    r2,
		clock: clock,
	}
}

// CreatePost saves the post, its targets and its media in one transaction.
// When a scheduled time is given the post is created in scheduled status and
// the returned delay tells the caller how long to defer the publish task.
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, 0, err
	}
	if pc.Content == "" && len(files) == 0 {
		err := errors.New("post needs content or media")
		slog.Info(err.Error())
		return 0, 0, err
	}

	var hashtags []string
	if pc.Hashtags != "" {
		if err := json.Unmarshal([]byte(pc.Hashtags), &hashtags); err != nil {
			err = fmt.Errorf("invalid hashtags format: %w", err)
			slog.Error(err.Error())
			return 0, 0, err
		}
	}

	var selectedAccounts []int64
	if pc.SelectedAccounts != "" {
		if err := json.Unmarshal([]byte(pc.SelectedAccounts), &selectedAccounts); err != nil {
			err = fmt.Errorf("invalid selected accounts format: %w", err)
			slog.Error(err.Error())
			return 0, 0, err
		}
	}
	if len(selectedAccounts) == 0 {
		err := errors.New("no social accounts selected")
		slog.Error(err.Error())
		return 0, 0, err
	}

	overrides := map[int64]transfer.TargetOverride{}
	if pc.Overrides != "" {
		if err := json.Unmarshal([]byte(pc.Overrides), &overrides); err != nil {
			err = fmt.Errorf("invalid overrides format: %w", err)
			slog.Error(err.Error())
			return 0, 0, err
		}
	}

	status := models.PostStatusDraft
	var scheduledAt *time.Time
	var delay time.Duration
	if pc.ScheduledAt != "" {
		t, err := parseScheduledTime(pc.ScheduledAt, pc.Timezone)
		if err != nil {
			slog.Info(err.Error())
			return 0, 0, err
		}
		status = models.PostStatusScheduled
		scheduledAt = &t
		delay = t.Sub(s.clock.Now())
		if delay < 0 {
			delay = 0
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:       userID,
		PostType:     inferPostType(pc.PostType, files),
		Content:      pc.Content,
		Hashtags:     hashtags,
		FirstComment: pc.FirstComment,
		Status:       status,
		ScheduledAt:  scheduledAt,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return 0, 0, fmt.Errorf("error creating post: %w", err)
	}

	if err = s.saveTargets(ctx, tx, userID, postID, selectedAccounts, overrides); err != nil {
		return 0, 0, fmt.Errorf("error processing selected accounts: %w", err)
	}

	if err = s.processFiles(ctx, tx, userID, postID, files); err != nil {
		return 0, 0, fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return postID, delay, nil
}

// parseScheduledTime interprets a wall-clock input in the user's timezone
// and converts it to UTC once, at write time.
func parseScheduledTime(value, timezone string) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	t, err := time.ParseInLocation(scheduledTimeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled time format: %w", err)
	}
	return t.UTC(), nil
}

func inferPostType(requested string, files []*multipart.FileHeader) string {
	if requested != "" {
		return requested
	}
	switch {
	case len(files) == 0:
		return models.PostTypeText
	case len(files) > 1:
		return models.PostTypeCarousel
	default:
		return models.PostTypeImage
	}
}

func (s *postService) saveTargets(ctx context.Context, tx *sql.Tx, userID, postID int64, accounts []int64, overrides map[int64]transfer.TargetOverride) error {
	for _, accountID := range accounts {
		exists, err := s.ac.CheckByUserID(ctx, accountID, userID)
		if err != nil {
			return fmt.Errorf("error checking social account %d: %w", accountID, err)
		}
		if !exists {
			return fmt.Errorf("social account %d does not exist", accountID)
		}

		target := models.PostTarget{
			PostID:    postID,
			AccountID: accountID,
			Status:    models.TargetStatusPending,
		}
		if ov, ok := overrides[accountID]; ok {
			target.ContentOverride = ov.Content
			target.HashtagsOverride = ov.Hashtags
		}
		if _, err := s.pt.Create(ctx, tx, &target); err != nil {
			return fmt.Errorf("error saving target for account %d: %w", accountID, err)
		}
	}
	return nil
}

func (s *postService) processFiles(ctx context.Context, tx *sql.Tx, userID, postID int64, files []*multipart.FileHeader) error {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {}, "gif": {},
	}

	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return fmt.Errorf("unsupported file type: %w", err)
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		assetID, err := s.saveFile(ctx, tx, userID, fileType.MIME.Value, fileBytes)
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:       postID,
			AssetID:      assetID,
			DisplayOrder: i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

// imageDimensions decodes only the image header. Video dimensions stay
// zero; reading them would need a demuxer.
func imageDimensions(mimeType string, data []byte) (int, int) {
	if !strings.HasPrefix(mimeType, "image/") {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func (s *postService) saveFile(ctx context.Context, tx *sql.Tx, userID int64, mimeType string, file []byte) (int64, error) {
	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	err = s.r2.UploadToR2(ctx, id, file, mimeType)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	width, height := imageDimensions(mimeType, file)
	ma := models.MediaAsset{
		UserID:   userID,
		FileName: id,
		MimeType: mimeType,
		FileSize: int64(len(file)),
		FileURL:  s.r2.PublicURL(id),
		Width:    width,
		Height:   height,
	}

	assetID, err := s.ma.Create(ctx, tx, &ma)
	if err != nil {
		return 0, err
	}

	return assetID, nil
}

// Update edits post content. Edits are only permitted while the post is a
// draft or scheduled; a post that has entered publishing is frozen.
func (s *postService) Update(ctx context.Context, userID, postID int64, pu *transfer.PostUpdate) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if err := publisher.EnsureEditable(post); err != nil {
		slog.Info(err.Error())
		return err
	}

	post.Content = pu.Content
	post.Hashtags = pu.Hashtags
	post.FirstComment = pu.FirstComment
	if pu.PostType != "" {
		post.PostType = pu.PostType
	}

	return s.pr.Update(ctx, post)
}

func (s *postService) Schedule(ctx context.Context, userID, postID int64, req *transfer.ScheduleRequest) (time.Duration, error) {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return 0, err
	}

	t, err := parseScheduledTime(req.ScheduledAt, req.Timezone)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if post.Status != models.PostStatusScheduled {
		if err := publisher.Transition(post, models.PostStatusScheduled); err != nil {
			slog.Info(err.Error())
			return 0, err
		}
	}
	post.ScheduledAt = &t

	if err := s.pr.Update(ctx, post); err != nil {
		return 0, err
	}

	delay := t.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return delay, nil
}

func (s *postService) Unschedule(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if err := publisher.Transition(post, models.PostStatusDraft); err != nil {
		slog.Info(err.Error())
		return err
	}
	post.ScheduledAt = nil

	return s.pr.Update(ctx, post)
}

// Cancel is honored only before publishing starts. Pending targets are
// cancelled with the post; any already queued publish task finds the claim
// gone and skips.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if err := publisher.Transition(post, models.PostStatusCancelled); err != nil {
		slog.Info(err.Error())
		return err
	}

	if err := s.pr.UpdateStatus(ctx, post.Status, post.ID); err != nil {
		return err
	}
	return s.pt.CancelPending(ctx, postID)
}

// PublishNow verifies the post can enter publishing and leaves the actual
// claim to the queue worker, so a racing sweep cannot double-publish.
func (s *postService) PublishNow(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !publisher.CanTransition(post.Status, models.PostStatusPublishing) {
		err = fmt.Errorf("post in %s status cannot be published", post.Status)
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Duplicate copies a post of any status back into a fresh draft, reusing the
// uploaded media assets and resetting every target to pending.
func (s *postService) Duplicate(ctx context.Context, userID, postID int64) (int64, error) {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return 0, err
	}

	targets, err := s.pt.ListByPostID(ctx, postID)
	if err != nil {
		return 0, err
	}
	media, err := s.ma.ListByPostID(ctx, postID)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	copied := models.Post{
		UserID:       userID,
		PostType:     post.PostType,
		Content:      post.Content,
		Hashtags:     post.Hashtags,
		FirstComment: post.FirstComment,
		Status:       models.PostStatusDraft,
	}
	newID, err := s.pr.Create(ctx, tx, &copied)
	if err != nil {
		return 0, err
	}

	for _, t := range targets {
		target := models.PostTarget{
			PostID:           newID,
			AccountID:        t.AccountID,
			ContentOverride:  t.ContentOverride,
			HashtagsOverride: t.HashtagsOverride,
			Status:           models.TargetStatusPending,
		}
		if _, err = s.pt.Create(ctx, tx, &target); err != nil {
			return 0, err
		}
	}

	for i, m := range media {
		pm := models.PostMedia{
			PostID:       newID,
			AssetID:      m.ID,
			DisplayOrder: i,
		}
		if err = s.pm.Create(ctx, tx, &pm); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return newID, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, error) {
	return s.ownedPost(ctx, postID, userID)
}

// Outcome renders the per-target publish report, pairing each target with
// its platform and the attempt history.
func (s *postService) Outcome(ctx context.Context, postID, userID int64) (*transfer.PostOutcome, error) {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	targets, err := s.pt.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	history, err := s.ph.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}

	outcome := &transfer.PostOutcome{
		PostID:      post.ID,
		Status:      post.Status,
		ScheduledAt: post.ScheduledAt,
		PublishedAt: post.PublishedAt,
	}

	for _, t := range targets {
		to := transfer.TargetOutcome{
			AccountID:      t.AccountID,
			Status:         t.Status,
			PlatformPostID: t.PlatformPostID,
			PlatformURL:    t.PlatformURL,
			ErrorMessage:   t.ErrorMessage,
			RetryCount:     t.RetryCount,
			PublishedAt:    t.PublishedAt,
		}
		account, err := s.ac.GetByID(ctx, t.AccountID)
		if err == nil && account != nil {
			to.Platform = account.Platform
			to.AccountName = account.AccountName
		}
		outcome.Targets = append(outcome.Targets, to)
	}

	for _, h := range history {
		outcome.Attempts = append(outcome.Attempts, transfer.AttemptRecord{
			Platform:     h.Platform,
			Attempt:      h.Attempt,
			ErrorKind:    h.ErrorKind,
			ErrorMessage: h.ErrorMessage,
			CreatedAt:    h.CreatedAt,
		})
	}

	return outcome, nil
}

// Remove deletes a post in any status except publishing.
func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, postID, userID)
	if err != nil {
		return err
	}

	if post.Status == models.PostStatusPublishing {
		err = errors.New("cannot delete a post while it is publishing")
		slog.Info(err.Error())
		return err
	}

	if err := s.pr.Remove(ctx, postID); err != nil {
		return fmt.Errorf("error removing post")
	}
	return nil
}

func (s *postService) ownedPost(ctx context.Context, postID, userID int64) (*models.Post, error) {
	var err error

	if userID == 0 {
		err = errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		return nil, fmt.Errorf("error getting post info")
	}
	return post, nil
}
