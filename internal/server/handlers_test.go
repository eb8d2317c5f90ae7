package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubsync/internal/domain"
	"pubsync/internal/service"
)

type stubIngestor struct {
	ingest      func(ctx context.Context, siteID, signature string, raw []byte, force bool) error
	push        func(ctx context.Context, contentID string, platform domain.Platform, op domain.SyncOperation, force bool) error
	syncStatus  func(ctx context.Context, contentID string) ([]domain.SyncMapping, error)
	getContent  func(ctx context.Context, id string) (*domain.ContentRecord, error)
	saveContent func(ctx context.Context, content *domain.ContentRecord, isNew bool) error
	delContent  func(ctx context.Context, contentID string) error
}

func (s *stubIngestor) Ingest(ctx context.Context, siteID, signature string, raw []byte, force bool) error {
	return s.ingest(ctx, siteID, signature, raw, force)
}

func (s *stubIngestor) PushToTarget(ctx context.Context, contentID string, platform domain.Platform, op domain.SyncOperation, force bool) error {
	return s.push(ctx, contentID, platform, op, force)
}

func (s *stubIngestor) SyncStatus(ctx context.Context, contentID string) ([]domain.SyncMapping, error) {
	return s.syncStatus(ctx, contentID)
}

func (s *stubIngestor) GetContent(ctx context.Context, id string) (*domain.ContentRecord, error) {
	return s.getContent(ctx, id)
}

func (s *stubIngestor) SaveContent(ctx context.Context, content *domain.ContentRecord, isNew bool) error {
	return s.saveContent(ctx, content, isNew)
}

func (s *stubIngestor) DeleteContent(ctx context.Context, contentID string) error {
	return s.delContent(ctx, contentID)
}

type stubPostManager struct {
	derive   func(ctx context.Context, contentID string, platforms []domain.Platform, opts service.DeriveOptions) ([]domain.ScheduledPost, error)
	schedule func(ctx context.Context, platform domain.Platform, payload domain.PostPayload, explicitTime *time.Time) (*domain.ScheduledPost, error)
	get      func(ctx context.Context, id string) (*domain.ScheduledPost, error)
	cancel   func(ctx context.Context, id string) error
}

func (s *stubPostManager) DerivePosts(ctx context.Context, contentID string, platforms []domain.Platform, opts service.DeriveOptions) ([]domain.ScheduledPost, error) {
	return s.derive(ctx, contentID, platforms, opts)
}

func (s *stubPostManager) SchedulePost(ctx context.Context, platform domain.Platform, payload domain.PostPayload, explicitTime *time.Time) (*domain.ScheduledPost, error) {
	return s.schedule(ctx, platform, payload, explicitTime)
}

func (s *stubPostManager) GetPost(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	return s.get(ctx, id)
}

func (s *stubPostManager) CancelPost(ctx context.Context, id string) error {
	return s.cancel(ctx, id)
}

type stubRunner struct {
	run func(ctx context.Context) (*service.TriggerSummary, error)
}

func (s *stubRunner) Run(ctx context.Context) (*service.TriggerSummary, error) {
	return s.run(ctx)
}

type stubPinger struct{ err error }

func (s *stubPinger) PingContext(context.Context) error { return s.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(ingestor Ingestor, posts PostManager, runner Runner, db Pinger) *Server {
	return New(ingestor, posts, runner, db, 0, testLogger())
}

func doRequest(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, &stubPinger{})
		rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("database down", func(t *testing.T) {
		srv := newTestServer(nil, nil, nil, &stubPinger{err: errors.New("refused")})
		rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestWebhook(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		var gotSite, gotSig string
		var gotBody []byte
		ingestor := &stubIngestor{
			ingest: func(_ context.Context, siteID, signature string, raw []byte, force bool) error {
				gotSite, gotSig, gotBody = siteID, signature, raw
				assert.False(t, force)
				return nil
			},
		}
		srv := newTestServer(ingestor, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/webhooks/blog", `{"event":"post.updated"}`, map[string]string{
			"X-Webhook-Signature": "sha256=abc",
		})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "blog", gotSite)
		assert.Equal(t, "sha256=abc", gotSig)
		assert.JSONEq(t, `{"event":"post.updated"}`, string(gotBody))
	})

	t.Run("falls back to hub signature header", func(t *testing.T) {
		var gotSig string
		ingestor := &stubIngestor{
			ingest: func(_ context.Context, _, signature string, _ []byte, _ bool) error {
				gotSig = signature
				return nil
			},
		}
		srv := newTestServer(ingestor, nil, nil, &stubPinger{})

		doRequest(t, srv, http.MethodPost, "/webhooks/blog", `{}`, map[string]string{
			"X-Hub-Signature-256": "sha256=def",
		})

		assert.Equal(t, "sha256=def", gotSig)
	})

	t.Run("unknown site", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			ingest: func(context.Context, string, string, []byte, bool) error {
				return service.ErrUnknownSite
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/webhooks/nope", `{}`, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid signature", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			ingest: func(context.Context, string, string, []byte, bool) error {
				return service.ErrSignatureInvalid
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/webhooks/blog", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("force query param", func(t *testing.T) {
		var gotForce bool
		srv := newTestServer(&stubIngestor{
			ingest: func(_ context.Context, _, _ string, _ []byte, force bool) error {
				gotForce = force
				return nil
			},
		}, nil, nil, &stubPinger{})

		doRequest(t, srv, http.MethodPost, "/webhooks/blog?force=true", `{}`, nil)
		assert.True(t, gotForce)
	})
}

func TestWebhookHandshake(t *testing.T) {
	srv := newTestServer(nil, nil, nil, &stubPinger{})

	rec := doRequest(t, srv, http.MethodGet, "/webhooks/blog?challenge=tok123", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok123", rec.Body.String())

	rec = doRequest(t, srv, http.MethodGet, "/webhooks/blog?hub.challenge=tok456", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok456", rec.Body.String())
}

func TestTrigger(t *testing.T) {
	runner := &stubRunner{
		run: func(context.Context) (*service.TriggerSummary, error) {
			return &service.TriggerSummary{
				Sync:    domain.SyncRunStats{Claimed: 3, Succeeded: 2, Failed: 1},
				Publish: domain.PublishRunStats{Due: 1, Published: 1},
			}, nil
		},
	}
	srv := newTestServer(nil, nil, runner, &stubPinger{})

	rec := doRequest(t, srv, http.MethodPost, "/trigger", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary service.TriggerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.Sync.Claimed)
	assert.Equal(t, 1, summary.Publish.Published)
}

func TestPush(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		var gotPlatform domain.Platform
		var gotOp domain.SyncOperation
		srv := newTestServer(&stubIngestor{
			push: func(_ context.Context, contentID string, platform domain.Platform, op domain.SyncOperation, force bool) error {
				assert.Equal(t, "content-1", contentID)
				gotPlatform, gotOp = platform, op
				return nil
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/content/content-1/push", `{"platform":"wordpress"}`, nil)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, domain.PlatformWordPress, gotPlatform)
		assert.Equal(t, domain.OpUpdate, gotOp)
	})

	t.Run("missing platform", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/content/content-1/push", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("disabled target", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			push: func(context.Context, string, domain.Platform, domain.SyncOperation, bool) error {
				return service.ErrTargetDisabled
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/content/content-1/push", `{"platform":"wordpress"}`, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("content not found", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			push: func(context.Context, string, domain.Platform, domain.SyncOperation, bool) error {
				return service.ErrContentNotFound
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/content/missing/push", `{"platform":"wordpress"}`, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestContentCRUD(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			saveContent: func(_ context.Context, content *domain.ContentRecord, isNew bool) error {
				assert.True(t, isNew)
				assert.Equal(t, "Hello", content.Title)
				assert.Equal(t, domain.ContentDraft, content.Status)
				assert.Equal(t, "post", content.ContentType)
				content.ID = "content-1"
				return nil
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/content", `{"title":"Hello"}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created domain.ContentRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, "content-1", created.ID)
	})

	t.Run("get missing", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			getContent: func(context.Context, string) (*domain.ContentRecord, error) {
				return nil, nil
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodGet, "/content/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			delContent: func(_ context.Context, contentID string) error {
				assert.Equal(t, "content-1", contentID)
				return nil
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodDelete, "/content/content-1", "", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("sync status", func(t *testing.T) {
		srv := newTestServer(&stubIngestor{
			syncStatus: func(context.Context, string) ([]domain.SyncMapping, error) {
				return []domain.SyncMapping{
					{ContentID: "content-1", Platform: domain.PlatformWordPress, Status: domain.SyncSynced},
				}, nil
			},
		}, nil, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodGet, "/content/content-1/sync-status", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCreatePosts(t *testing.T) {
	t.Run("derived from content", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{
			derive: func(_ context.Context, contentID string, platforms []domain.Platform, opts service.DeriveOptions) ([]domain.ScheduledPost, error) {
				assert.Equal(t, "content-1", contentID)
				assert.Equal(t, []domain.Platform{domain.PlatformLinkedIn}, platforms)
				assert.Equal(t, "https://example.com/p/1", opts.Link)
				return []domain.ScheduledPost{{ID: "post-1"}}, nil
			},
		}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts",
			`{"content_id":"content-1","platforms":["linkedin"],"link":"https://example.com/p/1"}`, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("platform-only", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{
			schedule: func(_ context.Context, platform domain.Platform, payload domain.PostPayload, _ *time.Time) (*domain.ScheduledPost, error) {
				assert.Equal(t, domain.PlatformLinkedIn, platform)
				assert.Equal(t, "standalone", payload.Text)
				return &domain.ScheduledPost{ID: "post-1", Platform: platform}, nil
			},
		}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts",
			`{"platforms":["linkedin"],"payload":{"text":"standalone"}}`, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("missing platforms", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts", `{"content_id":"content-1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelPost(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{
			cancel: func(context.Context, string) error { return nil },
		}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts/post-1/cancel", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not cancellable", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{
			cancel: func(context.Context, string) error {
				return service.ErrNotCancellable
			},
		}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts/post-1/cancel", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		srv := newTestServer(nil, &stubPostManager{
			cancel: func(context.Context, string) error {
				return service.ErrPostNotFound
			},
		}, nil, &stubPinger{})

		rec := doRequest(t, srv, http.MethodPost, "/posts/nope/cancel", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
