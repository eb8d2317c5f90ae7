package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"pubsync/internal/domain"
)

type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Create(ctx context.Context, c *domain.ContentRecord) error {
	query := `
		INSERT INTO content_records (
			id, organization_id, title, body, excerpt, status, content_type,
			publishing_options, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.ID,
		c.OrganizationID,
		c.Title,
		c.Body,
		c.Excerpt,
		c.Status,
		c.ContentType,
		c.Publishing,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

// Get returns nil when no record exists.
func (s *ContentStore) Get(ctx context.Context, id string) (*domain.ContentRecord, error) {
	query := `
		SELECT id, organization_id, title, body, excerpt, status, content_type,
		       publishing_options, created_at, updated_at
		FROM content_records
		WHERE id = $1`

	var c domain.ContentRecord
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ContentStore) Update(ctx context.Context, c *domain.ContentRecord) error {
	query := `
		UPDATE content_records SET
			title = $2,
			body = $3,
			excerpt = $4,
			status = $5,
			content_type = $6,
			publishing_options = $7,
			updated_at = $8
		WHERE id = $1`

	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.Body,
		c.Excerpt,
		c.Status,
		c.ContentType,
		c.Publishing,
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the record; sync mappings cascade.
func (s *ContentStore) Delete(ctx context.Context, id string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM content_records WHERE id = $1`, id)
	return err
}
