package domain

import "time"

type OutcomeKind string

const (
	OutcomeSync    OutcomeKind = "sync"
	OutcomePublish OutcomeKind = "publish"
)

// Outcome is one terminal result on the audit change-feed: a sync event or
// scheduled post reaching succeeded/failed/published.
type Outcome struct {
	Kind      OutcomeKind   `json:"kind"`
	Operation SyncOperation `json:"operation,omitempty"`
	ContentID string        `json:"content_id,omitempty"`
	PostID    string        `json:"post_id,omitempty"`
	Platform  Platform      `json:"platform"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
