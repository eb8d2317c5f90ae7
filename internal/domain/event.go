package domain

import (
	"encoding/json"
	"time"
)

type SyncDirection string

const (
	DirectionOutbound SyncDirection = "outbound"
	DirectionInbound  SyncDirection = "inbound"
)

type SyncOperation string

const (
	OpCreate SyncOperation = "create"
	OpUpdate SyncOperation = "update"
	OpDelete SyncOperation = "delete"
)

type EventStatus string

const (
	EventQueued     EventStatus = "queued"
	EventInProgress EventStatus = "in_progress"
	EventSucceeded  EventStatus = "succeeded"
	EventFailed     EventStatus = "failed"
)

// SyncEvent is one unit of propagation work. At most one queued event exists
// per (content_id, platform); enqueueing collapses into it. At most one event
// per pair is in_progress at a time.
type SyncEvent struct {
	ID            string          `db:"id"`
	ContentID     string          `db:"content_id"`
	Platform      Platform        `db:"platform"`
	Direction     SyncDirection   `db:"direction"`
	Operation     SyncOperation   `db:"operation"`
	Payload       json.RawMessage `db:"payload"`
	AttemptCount  int             `db:"attempt_count"`
	MaxAttempts   int             `db:"max_attempts"`
	Status        EventStatus     `db:"status"`
	LastError     *string         `db:"last_error"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

var retryLadder = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
}

const retryCeiling = 60 * time.Second

// RetryBackoff returns the delay before the next attempt after the given
// number of completed attempts: 1s, 5s, 15s, then a fixed 60s ceiling.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts <= len(retryLadder) {
		return retryLadder[attempts-1]
	}
	return retryCeiling
}
