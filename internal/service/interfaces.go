package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"pubsync/internal/domain"
)

type ContentStore interface {
	Create(ctx context.Context, c *domain.ContentRecord) error
	Get(ctx context.Context, id string) (*domain.ContentRecord, error)
	Update(ctx context.Context, c *domain.ContentRecord) error
	Delete(ctx context.Context, id string) error
}

type MappingStore interface {
	Get(ctx context.Context, contentID string, platform domain.Platform) (*domain.SyncMapping, error)
	GetByExternal(ctx context.Context, platform domain.Platform, externalID string) (*domain.SyncMapping, error)
	ListByContent(ctx context.Context, contentID string) ([]domain.SyncMapping, error)
	Upsert(ctx context.Context, m *domain.SyncMapping) error
	SetStatus(ctx context.Context, contentID string, platform domain.Platform, status domain.SyncStatus, lastError *string) error
	Delete(ctx context.Context, contentID string, platform domain.Platform) error
}

type EventStore interface {
	Enqueue(ctx context.Context, e *domain.SyncEvent) error
	DueQueued(ctx context.Context, now time.Time, limit int) ([]domain.SyncEvent, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attemptCount int, lastError string) error
	Reschedule(ctx context.Context, e *domain.SyncEvent, nextAttemptAt time.Time, lastError string) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

type PostStore interface {
	Create(ctx context.Context, p *domain.ScheduledPost) error
	Get(ctx context.Context, id string) (*domain.ScheduledPost, error)
	ListByContent(ctx context.Context, contentID string) ([]domain.ScheduledPost, error)
	Due(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledPost, error)
	Claim(ctx context.Context, id string) (bool, error)
	MarkPublished(ctx context.Context, id, platformPostID string, publishedTime time.Time) error
	RescheduleRetry(ctx context.Context, id string, retryCount int, scheduledTime time.Time, errorMessage string) error
	MarkFailed(ctx context.Context, id string, retryCount int, errorMessage string) error
	Cancel(ctx context.Context, id string) (bool, error)
	ReleaseStaleClaims(ctx context.Context, olderThan time.Time) (int, error)
}

type RuleStore interface {
	Get(ctx context.Context, platform domain.Platform) (*domain.SchedulingRule, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CMSAdapter talks to one website CMS. Implementations are stateless aside
// from credentials and must bound every call with a timeout.
type CMSAdapter interface {
	Platform() domain.Platform
	SiteID() string
	Create(ctx context.Context, content *domain.ContentRecord) (externalID string, err error)
	Update(ctx context.Context, externalID string, content *domain.ContentRecord) error
	Delete(ctx context.Context, externalID string) error
}

// SocialAdapter publishes posts through one social account.
type SocialAdapter interface {
	Platform() domain.Platform
	AccountRef() string
	PublishPost(ctx context.Context, payload domain.PostPayload) (platformPostID string, err error)
}

// OutcomePublisher feeds terminal sync/publish outcomes to the audit stream.
type OutcomePublisher interface {
	Publish(ctx context.Context, outcome *domain.Outcome) error
	Close() error
}
