package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pubsync/internal/config"
	"pubsync/internal/domain"
	"pubsync/internal/service/mocks"
	"pubsync/internal/webhook"
)

const webhookSecret = "shhh"

type IngestTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	content   *mocks.MockContentStore
	mappings  *mocks.MockMappingStore
	events    *mocks.MockEventStore
	txManager *mocks.MockTransactionManager
	wp        *mocks.MockCMSAdapter

	engine *SyncEngine
	logger *slog.Logger
}

func (s *IngestTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.content = mocks.NewMockContentStore(s.ctrl)
	s.mappings = mocks.NewMockMappingStore(s.ctrl)
	s.events = mocks.NewMockEventStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.wp = mocks.NewMockCMSAdapter(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.wp.EXPECT().Platform().Return(domain.PlatformWordPress).AnyTimes()
	s.wp.EXPECT().SiteID().Return("site-1").AnyTimes()

	s.engine = s.newEngine(false)
}

func (s *IngestTestSuite) newEngine(allowInboundCreate bool) *SyncEngine {
	sites := []config.SiteConfig{
		{
			ID:                 "site-1",
			Platform:           domain.PlatformWordPress,
			OrganizationID:     "org-1",
			WebhookSecret:      webhookSecret,
			AllowInboundCreate: allowInboundCreate,
		},
	}
	return NewSyncEngine(
		s.content,
		s.mappings,
		s.events,
		s.txManager,
		[]CMSAdapter{s.wp},
		sites,
		nil,
		s.logger,
		config.SyncConfig{MaxAttempts: 3, Workers: 1, BatchSize: 10, RunTimeout: time.Minute},
	)
}

func (s *IngestTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestIngestTestSuite(t *testing.T) {
	suite.Run(t, new(IngestTestSuite))
}

func wpDelivery(event string, id int64, title, body, excerpt, status, modified string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"type":"post","post":{"id":%d,"title":{"raw":%q},"content":{"raw":%q},"excerpt":{"raw":%q},"status":%q,"modified_gmt":%q}}`,
		event, id, title, body, excerpt, status, modified,
	))
}

func (s *IngestTestSuite) TestIngest_UnknownSite() {
	err := s.engine.Ingest(context.Background(), "nope", "sig", []byte(`{}`), false)
	s.ErrorIs(err, ErrUnknownSite)
}

func (s *IngestTestSuite) TestIngest_InvalidSignatureNeverTouchesStores() {
	body := wpDelivery("post.updated", 42, "t", "b", "", "publish", "2026-01-02T10:00:00")

	// No store expectations at all: an unverified body must not be parsed or
	// applied.
	err := s.engine.Ingest(context.Background(), "site-1", "sha256=deadbeef", body, false)
	s.ErrorIs(err, ErrSignatureInvalid)
}

func (s *IngestTestSuite) TestIngest_EmptySignatureRejected() {
	body := wpDelivery("post.updated", 42, "t", "b", "", "publish", "2026-01-02T10:00:00")

	err := s.engine.Ingest(context.Background(), "site-1", "", body, false)
	s.ErrorIs(err, ErrSignatureInvalid)
}

func (s *IngestTestSuite) TestIngest_RedeliveryIsNoOp() {
	ctx := context.Background()
	body := wpDelivery("post.updated", 42, "Release notes", "We shipped.", "Short.", "publish", "2026-01-02T10:00:00")

	existing := &domain.ContentRecord{
		ID:          "content-1",
		Title:       "Release notes",
		Body:        "We shipped.",
		Excerpt:     "Short.",
		Status:      domain.ContentPublished,
		ContentType: "post",
		UpdatedAt:   time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
	}

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.content.EXPECT().Get(ctx, "content-1").Return(existing, nil)

	// Same fields, same hash: no update, no fan-out.
	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_StaleChangeDropped() {
	ctx := context.Background()
	body := wpDelivery("post.updated", 42, "Old title", "Old body.", "", "publish", "2026-01-02T10:00:00")

	existing := &domain.ContentRecord{
		ID:          "content-1",
		Title:       "Newer title",
		Body:        "Newer body.",
		Status:      domain.ContentPublished,
		ContentType: "post",
		// Canonical copy edited after the inbound change was made.
		UpdatedAt: time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
	}

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.content.EXPECT().Get(ctx, "content-1").Return(existing, nil)

	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_MissingTimestampStillApplies() {
	ctx := context.Background()
	// modified_gmt is empty: the delivery carries no usable change timestamp.
	body := wpDelivery("post.updated", 42, "Fresh title", "Fresh body.", "", "publish", "")

	existing := &domain.ContentRecord{
		ID:          "content-1",
		Title:       "Stale title",
		Body:        "Stale body.",
		Status:      domain.ContentPublished,
		ContentType: "post",
		UpdatedAt:   time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
		Publishing: domain.PublishingOptions{
			Targets: map[domain.Platform]bool{domain.PlatformWordPress: true},
		},
	}

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.content.EXPECT().Get(ctx, "content-1").Return(existing, nil)

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	// A genuinely changed payload must not be dropped as stale just because
	// the timestamp was missing; it defaults to now and wins.
	s.content.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.ContentRecord) error {
			s.Equal("Fresh title", c.Title)
			s.False(c.UpdatedAt.IsZero())
			s.True(c.UpdatedAt.After(existing.UpdatedAt))
			return nil
		},
	)
	s.mappings.EXPECT().Upsert(ctx, gomock.Any()).Return(nil)

	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_ForceOverridesTimestampCheck() {
	ctx := context.Background()
	body := wpDelivery("post.updated", 42, "Old title", "Old body.", "", "publish", "2026-01-02T10:00:00")

	existing := &domain.ContentRecord{
		ID:          "content-1",
		Title:       "Newer title",
		Body:        "Newer body.",
		Status:      domain.ContentPublished,
		ContentType: "post",
		UpdatedAt:   time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
		Publishing: domain.PublishingOptions{
			Targets: map[domain.Platform]bool{domain.PlatformWordPress: true},
		},
	}

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.content.EXPECT().Get(ctx, "content-1").Return(existing, nil)

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.content.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.ContentRecord) error {
			s.Equal("Old title", c.Title)
			return nil
		},
	)
	s.mappings.EXPECT().Upsert(ctx, gomock.Any()).Return(nil)

	// The origin platform is the only registered adapter, so the fan-out
	// enqueues nothing: the change must not echo back to where it came from.
	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, true))
}

func (s *IngestTestSuite) TestIngest_AppliedUpdateDoesNotEchoToOrigin() {
	ctx := context.Background()
	body := wpDelivery("post.updated", 42, "Fresh title", "Fresh body.", "", "publish", "2026-01-02T12:00:00")

	existing := &domain.ContentRecord{
		ID:          "content-1",
		Title:       "Stale title",
		Body:        "Stale body.",
		Status:      domain.ContentPublished,
		ContentType: "post",
		UpdatedAt:   time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
		Publishing: domain.PublishingOptions{
			Targets: map[domain.Platform]bool{domain.PlatformWordPress: true},
		},
	}

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.content.EXPECT().Get(ctx, "content-1").Return(existing, nil)

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.content.EXPECT().Update(ctx, gomock.Any()).Return(nil)
	s.mappings.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, m *domain.SyncMapping) error {
			s.Equal(domain.SyncSynced, m.Status)
			s.Nil(m.LastError)
			return nil
		},
	)

	// No Enqueue expectation: wordpress is both origin and the only target.
	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_UnmappedDroppedByDefault() {
	ctx := context.Background()
	body := wpDelivery("post.created", 99, "New post", "Body.", "", "draft", "2026-01-02T10:00:00")

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "99").Return(nil, nil)

	// allow_inbound_create is off: no content is created.
	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_UnmappedCreatesWhenAllowed() {
	ctx := context.Background()
	engine := s.newEngine(true)
	body := wpDelivery("post.created", 99, "New post", "Body.", "", "publish", "2026-01-02T10:00:00")

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "99").Return(nil, nil)

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.content.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.ContentRecord) error {
			s.NotEmpty(c.ID)
			s.Equal("org-1", c.OrganizationID)
			s.Equal("New post", c.Title)
			s.Equal(domain.ContentPublished, c.Status)
			// Inbound-created content targets only its origin.
			s.Equal(map[domain.Platform]bool{domain.PlatformWordPress: true}, c.Publishing.Targets)
			return nil
		},
	)
	s.mappings.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, m *domain.SyncMapping) error {
			s.Equal("99", m.ExternalID)
			s.Equal(domain.SyncSynced, m.Status)
			return nil
		},
	)

	s.NoError(engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_DeleteRemovesCanonicalRecord() {
	ctx := context.Background()
	body := wpDelivery("post.deleted", 42, "Gone", "", "", "trash", "2026-01-02T10:00:00")

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(&domain.SyncMapping{
		ContentID:  "content-1",
		Platform:   domain.PlatformWordPress,
		ExternalID: "42",
	}, nil)
	s.mappings.EXPECT().ListByContent(ctx, "content-1").Return([]domain.SyncMapping{
		{ContentID: "content-1", Platform: domain.PlatformWordPress, ExternalID: "42"},
	}, nil)
	s.content.EXPECT().Delete(ctx, "content-1").Return(nil)

	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}

func (s *IngestTestSuite) TestIngest_DeleteForUnmappedEntityIsNoOp() {
	ctx := context.Background()
	body := wpDelivery("post.deleted", 42, "Gone", "", "", "trash", "2026-01-02T10:00:00")

	s.mappings.EXPECT().GetByExternal(ctx, domain.PlatformWordPress, "42").Return(nil, nil)

	s.NoError(s.engine.Ingest(ctx, "site-1", webhook.Sign(webhookSecret, body), body, false))
}
