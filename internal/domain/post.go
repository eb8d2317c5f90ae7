package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type PostStatus string

const (
	PostScheduled PostStatus = "scheduled"
	PostClaimed   PostStatus = "claimed"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
	PostCancelled PostStatus = "cancelled"
)

// PostPayload is the platform-shaped content of a scheduled post, immutable
// once created except through an explicit edit before publication.
type PostPayload struct {
	Text        string   `json:"text"`
	Title       string   `json:"title,omitempty"`
	Link        string   `json:"link,omitempty"`
	MediaAssets []string `json:"media_assets,omitempty"`
	Visibility  string   `json:"visibility,omitempty"`
}

func (p PostPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PostPayload) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = PostPayload{}
		return nil
	default:
		return fmt.Errorf("unsupported post_payload type %T", src)
	}
}

// ScheduledPost is a platform-specific post derived from canonical content
// (or created platform-only, in which case ContentID is nil).
type ScheduledPost struct {
	ID             string      `db:"id"`
	OrganizationID string      `db:"organization_id"`
	ContentID      *string     `db:"content_id"`
	Platform       Platform    `db:"platform"`
	AccountRef     string      `db:"account_ref"`
	Status         PostStatus  `db:"status"`
	ScheduledTime  time.Time   `db:"scheduled_time"`
	PublishedTime  *time.Time  `db:"published_time"`
	Payload        PostPayload `db:"post_payload"`
	PlatformPostID *string     `db:"platform_post_id"`
	RetryCount     int         `db:"retry_count"`
	MaxRetries     int         `db:"max_retries"`
	ErrorMessage   *string     `db:"error_message"`
	ClaimedAt      *time.Time  `db:"claimed_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

// SchedulingRule is the per-platform default posting time, consulted when a
// post is derived without an explicit time. Read-only at runtime.
type SchedulingRule struct {
	Platform     Platform `db:"platform"`
	Hour         int      `db:"hour"`
	Minute       int      `db:"minute"`
	Timezone     string   `db:"timezone"`
	SkipWeekends bool     `db:"skip_weekends"`
}

// NextOccurrence returns the first rule time strictly after the given
// instant, skipping Saturdays and Sundays when the rule excludes weekends.
func (r SchedulingRule) NextOccurrence(after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", r.Timezone, err)
	}

	local := after.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), r.Hour, r.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	if r.SkipWeekends {
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next, nil
}
