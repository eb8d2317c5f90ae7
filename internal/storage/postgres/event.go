package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"pubsync/internal/domain"
)

type EventStore struct {
	db *sqlx.DB
}

func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, content_id, platform, direction, operation, payload,
	attempt_count, max_attempts, status, last_error, next_attempt_at,
	created_at, updated_at`

// Enqueue inserts a queued event, collapsing into the existing queued event
// for the same (content_id, platform) instead of duplicating. The partial
// unique index on queued rows enforces the invariant. A pending create
// absorbs a later update; a delete supersedes whatever was pending.
func (s *EventStore) Enqueue(ctx context.Context, e *domain.SyncEvent) error {
	query := `
		INSERT INTO sync_events (
			id, content_id, platform, direction, operation, payload,
			attempt_count, max_attempts, status, next_attempt_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'queued', $9, $10, $10)
		ON CONFLICT (content_id, platform) WHERE status = 'queued' DO UPDATE SET
			operation = CASE
				WHEN EXCLUDED.operation = 'delete' THEN 'delete'
				WHEN sync_events.operation = 'create' THEN 'create'
				ELSE EXCLUDED.operation
			END,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		e.ID,
		e.ContentID,
		e.Platform,
		e.Direction,
		e.Operation,
		e.Payload,
		e.AttemptCount,
		e.MaxAttempts,
		e.NextAttemptAt,
		e.CreatedAt,
	)
	return err
}

// DueQueued returns queued events whose next attempt time has passed, oldest
// first so per-pair FIFO order is preserved.
func (s *EventStore) DueQueued(ctx context.Context, now time.Time, limit int) ([]domain.SyncEvent, error) {
	query := `SELECT ` + eventColumns + `
		FROM sync_events
		WHERE status = 'queued' AND next_attempt_at <= $1
		ORDER BY created_at
		LIMIT $2`

	var events []domain.SyncEvent
	err := sqlx.SelectContext(ctx, s.db, &events, query, now, limit)
	return events, err
}

// Claim conditionally moves the event to in_progress. It refuses when the
// event is no longer queued or when another event for the same pair is
// already in flight (single-flight per target).
func (s *EventStore) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE sync_events SET status = 'in_progress', updated_at = $2
		WHERE id = $1 AND status = 'queued'
		  AND NOT EXISTS (
			SELECT 1 FROM sync_events e2
			WHERE e2.content_id = sync_events.content_id
			  AND e2.platform = sync_events.platform
			  AND e2.status = 'in_progress'
		  )`

	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *EventStore) MarkSucceeded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_events SET status = 'succeeded', last_error = NULL, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	return err
}

func (s *EventStore) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_events SET status = 'failed', attempt_count = $2, last_error = $3, updated_at = $4 WHERE id = $1`,
		id, attemptCount, lastError, time.Now().UTC())
	return err
}

// Reschedule returns a failed attempt to the queue. When a newer queued
// event for the pair arrived while this one was in flight, this event is
// dropped and its attempt count carried onto the newer one, which holds the
// fresher payload.
func (s *EventStore) Reschedule(ctx context.Context, e *domain.SyncEvent, nextAttemptAt time.Time, lastError string) error {
	query := `
		UPDATE sync_events
		SET status = 'queued', attempt_count = $2, next_attempt_at = $3,
		    last_error = $4, updated_at = $5
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM sync_events q
			WHERE q.content_id = sync_events.content_id
			  AND q.platform = sync_events.platform
			  AND q.status = 'queued'
		  )`

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, query, e.ID, e.AttemptCount, nextAttemptAt, lastError, now)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_events SET attempt_count = GREATEST(attempt_count, $3), updated_at = $4
		WHERE content_id = $1 AND platform = $2 AND status = 'queued'`,
		e.ContentID, e.Platform, e.AttemptCount, now)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM sync_events WHERE id = $1`, e.ID)
	return err
}

// ReleaseStale requeues in_progress events older than the cutoff; the worker
// that claimed them is presumed dead.
func (s *EventStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_events SET status = 'queued', updated_at = $2
		WHERE status = 'in_progress' AND updated_at < $1`,
		olderThan, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// PurgeTerminal deletes terminal events older than the cutoff; the queue is
// transient bookkeeping, not an archive.
func (s *EventStore) PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_events
		WHERE status IN ('succeeded', 'failed') AND updated_at < $1`,
		olderThan)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}
