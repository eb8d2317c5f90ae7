package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies one external publishing surface.
type Platform string

const (
	PlatformWordPress Platform = "wordpress"
	PlatformDrupal    Platform = "drupal"
	PlatformLinkedIn  Platform = "linkedin"
)

type ContentStatus string

const (
	ContentDraft     ContentStatus = "draft"
	ContentPublished ContentStatus = "published"
	ContentArchived  ContentStatus = "archived"
)

// ContentRecord is the canonical representation of a content item,
// independent of any external platform's schema.
type ContentRecord struct {
	ID             string            `db:"id"`
	OrganizationID string            `db:"organization_id"`
	Title          string            `db:"title"`
	Body           string            `db:"body"`
	Excerpt        string            `db:"excerpt"`
	Status         ContentStatus     `db:"status"`
	ContentType    string            `db:"content_type"`
	Publishing     PublishingOptions `db:"publishing_options"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`

	// OriginPlatform tags a mutation applied by inbound ingestion so the
	// outbound fan-out can exclude the platform the change came from.
	// Never persisted.
	OriginPlatform Platform `db:"-"`
}

// PublishingOptions selects which targets a record syncs to, with optional
// per-target overrides. Stored as JSONB.
type PublishingOptions struct {
	Targets   map[Platform]bool           `json:"targets"`
	Overrides map[Platform]TargetOverride `json:"overrides,omitempty"`
}

type TargetOverride struct {
	Title   string `json:"title,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
}

// TargetEnabled reports whether the record should sync to the platform.
func (p PublishingOptions) TargetEnabled(platform Platform) bool {
	return p.Targets[platform]
}

func (p PublishingOptions) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PublishingOptions) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		*p = PublishingOptions{}
		return nil
	default:
		return fmt.Errorf("unsupported publishing_options type %T", src)
	}
}
