package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"pubsync/internal/domain"
)

type MappingStore struct {
	db *sqlx.DB
}

func NewMappingStore(db *sqlx.DB) *MappingStore {
	return &MappingStore{db: db}
}

const mappingColumns = `content_id, organization_id, platform, external_id,
	last_synced_at, last_synced_hash, status, last_error`

// Get returns nil when no mapping exists for the pair.
func (s *MappingStore) Get(ctx context.Context, contentID string, platform domain.Platform) (*domain.SyncMapping, error) {
	query := `SELECT ` + mappingColumns + `
		FROM sync_mappings
		WHERE content_id = $1 AND platform = $2`

	var m domain.SyncMapping
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &m, query, contentID, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByExternal resolves a mapping from the platform's side of the identity.
func (s *MappingStore) GetByExternal(ctx context.Context, platform domain.Platform, externalID string) (*domain.SyncMapping, error) {
	query := `SELECT ` + mappingColumns + `
		FROM sync_mappings
		WHERE platform = $1 AND external_id = $2`

	var m domain.SyncMapping
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &m, query, platform, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MappingStore) ListByContent(ctx context.Context, contentID string) ([]domain.SyncMapping, error) {
	query := `SELECT ` + mappingColumns + `
		FROM sync_mappings
		WHERE content_id = $1
		ORDER BY platform`

	var mappings []domain.SyncMapping
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &mappings, query, contentID)
	return mappings, err
}

// Upsert inserts or updates the mapping for (content_id, platform). An
// already-assigned external_id is never overwritten.
func (s *MappingStore) Upsert(ctx context.Context, m *domain.SyncMapping) error {
	query := `
		INSERT INTO sync_mappings (
			content_id, organization_id, platform, external_id,
			last_synced_at, last_synced_hash, status, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_id, platform) DO UPDATE SET
			external_id = CASE
				WHEN sync_mappings.external_id = '' THEN EXCLUDED.external_id
				ELSE sync_mappings.external_id
			END,
			last_synced_at = EXCLUDED.last_synced_at,
			last_synced_hash = EXCLUDED.last_synced_hash,
			status = EXCLUDED.status,
			last_error = EXCLUDED.last_error`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		m.ContentID,
		m.OrganizationID,
		m.Platform,
		m.ExternalID,
		m.LastSyncedAt,
		m.LastSyncedHash,
		m.Status,
		m.LastError,
	)
	return err
}

// SetStatus records the outcome of a sync attempt without touching the hash.
func (s *MappingStore) SetStatus(ctx context.Context, contentID string, platform domain.Platform, status domain.SyncStatus, lastError *string) error {
	query := `
		UPDATE sync_mappings
		SET status = $3, last_error = $4
		WHERE content_id = $1 AND platform = $2`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, contentID, platform, status, lastError)
	return err
}

// Delete removes the mapping after a successful outbound delete.
func (s *MappingStore) Delete(ctx context.Context, contentID string, platform domain.Platform) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM sync_mappings WHERE content_id = $1 AND platform = $2`,
		contentID, platform)
	return err
}
