package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"pubsync/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

const postColumns = `id, organization_id, content_id, platform, account_ref,
	status, scheduled_time, published_time, post_payload, platform_post_id,
	retry_count, max_retries, error_message, claimed_at, created_at, updated_at`

func (s *PostStore) Create(ctx context.Context, p *domain.ScheduledPost) error {
	query := `
		INSERT INTO scheduled_posts (
			id, organization_id, content_id, platform, account_ref, status,
			scheduled_time, post_payload, retry_count, max_retries,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		p.ID,
		p.OrganizationID,
		p.ContentID,
		p.Platform,
		p.AccountRef,
		p.Status,
		p.ScheduledTime,
		p.Payload,
		p.RetryCount,
		p.MaxRetries,
		p.CreatedAt,
	)
	return err
}

// Get returns nil when no post exists.
func (s *PostStore) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`

	var p domain.ScheduledPost
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &p, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostStore) ListByContent(ctx context.Context, contentID string) ([]domain.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE content_id = $1
		ORDER BY scheduled_time`

	var posts []domain.ScheduledPost
	err := sqlx.SelectContext(ctx, s.db, &posts, query, contentID)
	return posts, err
}

// Due returns scheduled posts whose time has come, oldest first.
func (s *PostStore) Due(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledPost, error) {
	query := `SELECT ` + postColumns + `
		FROM scheduled_posts
		WHERE status = 'scheduled' AND scheduled_time <= $1
		ORDER BY scheduled_time
		LIMIT $2`

	var posts []domain.ScheduledPost
	err := sqlx.SelectContext(ctx, s.db, &posts, query, now, limit)
	return posts, err
}

// Claim conditionally transitions the post from scheduled to claimed so
// overlapping processing passes cannot both publish it. A false return
// means another pass won the claim; the caller skips the post.
func (s *PostStore) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'claimed', claimed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'scheduled'`

	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *PostStore) MarkPublished(ctx context.Context, id, platformPostID string, publishedTime time.Time) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'published', platform_post_id = $2, published_time = $3,
		    error_message = NULL, claimed_at = NULL, updated_at = $4
		WHERE id = $1 AND status = 'claimed'`

	_, err := s.db.ExecContext(ctx, query, id, platformPostID, publishedTime, time.Now().UTC())
	return err
}

// RescheduleRetry returns a claimed post to scheduled with an advanced time
// after a failed publish attempt.
func (s *PostStore) RescheduleRetry(ctx context.Context, id string, retryCount int, scheduledTime time.Time, errorMessage string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'scheduled', retry_count = $2, scheduled_time = $3,
		    error_message = $4, claimed_at = NULL, updated_at = $5
		WHERE id = $1 AND status = 'claimed'`

	_, err := s.db.ExecContext(ctx, query, id, retryCount, scheduledTime, errorMessage, time.Now().UTC())
	return err
}

func (s *PostStore) MarkFailed(ctx context.Context, id string, retryCount int, errorMessage string) error {
	query := `
		UPDATE scheduled_posts
		SET status = 'failed', retry_count = $2, error_message = $3,
		    claimed_at = NULL, updated_at = $4
		WHERE id = $1 AND status = 'claimed'`

	_, err := s.db.ExecContext(ctx, query, id, retryCount, errorMessage, time.Now().UTC())
	return err
}

// Cancel succeeds only from scheduled; a claimed post is already committed
// to a publish attempt.
func (s *PostStore) Cancel(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scheduled_posts
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'scheduled'`

	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ReleaseStaleClaims returns posts claimed before the cutoff to scheduled
// without counting a retry; the claim owner may have died before the
// adapter call completed.
func (s *PostStore) ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET status = 'scheduled', claimed_at = NULL, updated_at = $2
		WHERE status = 'claimed' AND claimed_at < $1`,
		olderThan, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}
