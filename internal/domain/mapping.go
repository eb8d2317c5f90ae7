package domain

import "time"

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// SyncMapping links one ContentRecord to its identity on one external
// platform. Unique on (content_id, platform); ExternalID is assigned on the
// first successful create and never changes afterwards.
type SyncMapping struct {
	ContentID      string     `db:"content_id"`
	OrganizationID string     `db:"organization_id"`
	Platform       Platform   `db:"platform"`
	ExternalID     string     `db:"external_id"`
	LastSyncedAt   *time.Time `db:"last_synced_at"`
	LastSyncedHash string     `db:"last_synced_hash"`
	Status         SyncStatus `db:"status"`
	LastError      *string    `db:"last_error"`
}
