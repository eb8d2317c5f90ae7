package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pubsync/internal/domain"
)

// Event is a verified, decoded inbound change notification.
type Event struct {
	Platform   domain.Platform
	Operation  domain.SyncOperation
	OccurredAt time.Time
	Entity     Entity
}

// Entity is the tagged union of per-platform payload shapes: one variant per
// supported entity type, each with an explicit mapping to canonical fields.
type Entity interface {
	Canonical() Canonical
}

// Canonical is the platform-independent projection of an inbound entity.
type Canonical struct {
	ExternalID  string
	Title       string
	Body        string
	Excerpt     string
	Status      domain.ContentStatus
	ContentType string
	ModifiedAt  time.Time
}

// Decode parses a verified raw body into an Event for the given platform.
func Decode(platform domain.Platform, raw []byte) (*Event, error) {
	switch platform {
	case domain.PlatformWordPress:
		return decodeWordPress(raw)
	case domain.PlatformDrupal:
		return decodeDrupal(raw)
	default:
		return nil, fmt.Errorf("no webhook decoder for platform %q", platform)
	}
}

// WordPressPost is the post variant of a WordPress delivery.
type WordPressPost struct {
	ID          int64  `json:"id"`
	Title       wpText `json:"title"`
	Content     wpText `json:"content"`
	Excerpt     wpText `json:"excerpt"`
	Status      string `json:"status"`
	ModifiedGMT string `json:"modified_gmt"`
}

// WordPressPage is the page variant of a WordPress delivery.
type WordPressPage struct {
	ID          int64  `json:"id"`
	Title       wpText `json:"title"`
	Content     wpText `json:"content"`
	Status      string `json:"status"`
	ModifiedGMT string `json:"modified_gmt"`
}

type wpText struct {
	Raw      string `json:"raw"`
	Rendered string `json:"rendered"`
}

func (t wpText) value() string {
	if t.Raw != "" {
		return t.Raw
	}
	return t.Rendered
}

func (p WordPressPost) Canonical() Canonical {
	return Canonical{
		ExternalID:  fmt.Sprintf("%d", p.ID),
		Title:       p.Title.value(),
		Body:        p.Content.value(),
		Excerpt:     p.Excerpt.value(),
		Status:      wpCanonicalStatus(p.Status),
		ContentType: "post",
		ModifiedAt:  parseWPTime(p.ModifiedGMT),
	}
}

func (p WordPressPage) Canonical() Canonical {
	return Canonical{
		ExternalID:  fmt.Sprintf("%d", p.ID),
		Title:       p.Title.value(),
		Body:        p.Content.value(),
		Status:      wpCanonicalStatus(p.Status),
		ContentType: "page",
		ModifiedAt:  parseWPTime(p.ModifiedGMT),
	}
}

type wordPressDelivery struct {
	Event string          `json:"event"` // e.g. "post.created"
	Type  string          `json:"type"`  // "post" | "page"
	Post  json.RawMessage `json:"post"`
}

func decodeWordPress(raw []byte) (*Event, error) {
	var d wordPressDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode wordpress delivery: %w", err)
	}

	op, err := operationFromSuffix(d.Event)
	if err != nil {
		return nil, err
	}

	var entity Entity
	switch d.Type {
	case "", "post":
		var p WordPressPost
		if err := json.Unmarshal(d.Post, &p); err != nil {
			return nil, fmt.Errorf("decode wordpress post: %w", err)
		}
		entity = p
	case "page":
		var p WordPressPage
		if err := json.Unmarshal(d.Post, &p); err != nil {
			return nil, fmt.Errorf("decode wordpress page: %w", err)
		}
		entity = p
	default:
		return nil, fmt.Errorf("unsupported wordpress entity type %q", d.Type)
	}

	return &Event{
		Platform:   domain.PlatformWordPress,
		Operation:  op,
		OccurredAt: entity.Canonical().ModifiedAt,
		Entity:     entity,
	}, nil
}

// DrupalArticle is the article variant of a Drupal delivery.
type DrupalArticle struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
	Status  bool   `json:"status"`
	Changed int64  `json:"changed"` // unix seconds
}

// DrupalPage is the page variant of a Drupal delivery.
type DrupalPage struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Status  bool   `json:"status"`
	Changed int64  `json:"changed"`
}

func (a DrupalArticle) Canonical() Canonical {
	return Canonical{
		ExternalID:  a.ID,
		Title:       a.Title,
		Body:        a.Body,
		Excerpt:     a.Summary,
		Status:      drupalCanonicalStatus(a.Status),
		ContentType: "post",
		ModifiedAt:  time.Unix(a.Changed, 0).UTC(),
	}
}

func (p DrupalPage) Canonical() Canonical {
	return Canonical{
		ExternalID:  p.ID,
		Title:       p.Title,
		Body:        p.Body,
		Status:      drupalCanonicalStatus(p.Status),
		ContentType: "page",
		ModifiedAt:  time.Unix(p.Changed, 0).UTC(),
	}
}

type drupalDelivery struct {
	Op         string          `json:"op"` // "insert" | "update" | "delete"
	EntityType string          `json:"entity_type"`
	Entity     json.RawMessage `json:"entity"`
}

func decodeDrupal(raw []byte) (*Event, error) {
	var d drupalDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode drupal delivery: %w", err)
	}

	var op domain.SyncOperation
	switch d.Op {
	case "insert":
		op = domain.OpCreate
	case "update":
		op = domain.OpUpdate
	case "delete":
		op = domain.OpDelete
	default:
		return nil, fmt.Errorf("unsupported drupal op %q", d.Op)
	}

	var entity Entity
	switch d.EntityType {
	case "", "article":
		var a DrupalArticle
		if err := json.Unmarshal(d.Entity, &a); err != nil {
			return nil, fmt.Errorf("decode drupal article: %w", err)
		}
		entity = a
	case "page":
		var p DrupalPage
		if err := json.Unmarshal(d.Entity, &p); err != nil {
			return nil, fmt.Errorf("decode drupal page: %w", err)
		}
		entity = p
	default:
		return nil, fmt.Errorf("unsupported drupal entity type %q", d.EntityType)
	}

	return &Event{
		Platform:   domain.PlatformDrupal,
		Operation:  op,
		OccurredAt: entity.Canonical().ModifiedAt,
		Entity:     entity,
	}, nil
}

func operationFromSuffix(event string) (domain.SyncOperation, error) {
	switch {
	case strings.HasSuffix(event, ".created"):
		return domain.OpCreate, nil
	case strings.HasSuffix(event, ".updated"):
		return domain.OpUpdate, nil
	case strings.HasSuffix(event, ".deleted"):
		return domain.OpDelete, nil
	default:
		return "", fmt.Errorf("unsupported event %q", event)
	}
}

func wpCanonicalStatus(s string) domain.ContentStatus {
	switch s {
	case "publish":
		return domain.ContentPublished
	case "private", "trash":
		return domain.ContentArchived
	default:
		return domain.ContentDraft
	}
}

func drupalCanonicalStatus(published bool) domain.ContentStatus {
	if published {
		return domain.ContentPublished
	}
	return domain.ContentDraft
}

func parseWPTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
