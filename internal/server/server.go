// Package server exposes the HTTP surface: inbound webhooks, the periodic
// trigger entry point, and read-only status queries.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"pubsync/internal/domain"
	"pubsync/internal/service"
)

// Ingestor is the sync-engine surface the handlers need.
type Ingestor interface {
	Ingest(ctx context.Context, siteID, signature string, raw []byte, force bool) error
	PushToTarget(ctx context.Context, contentID string, platform domain.Platform, op domain.SyncOperation, force bool) error
	SyncStatus(ctx context.Context, contentID string) ([]domain.SyncMapping, error)
	GetContent(ctx context.Context, id string) (*domain.ContentRecord, error)
	SaveContent(ctx context.Context, content *domain.ContentRecord, isNew bool) error
	DeleteContent(ctx context.Context, contentID string) error
}

// PostManager is the publish-service surface the handlers need.
type PostManager interface {
	DerivePosts(ctx context.Context, contentID string, platforms []domain.Platform, opts service.DeriveOptions) ([]domain.ScheduledPost, error)
	SchedulePost(ctx context.Context, platform domain.Platform, payload domain.PostPayload, explicitTime *time.Time) (*domain.ScheduledPost, error)
	GetPost(ctx context.Context, id string) (*domain.ScheduledPost, error)
	CancelPost(ctx context.Context, id string) error
}

// Runner is the combined processing pass behind the trigger endpoint.
type Runner interface {
	Run(ctx context.Context) (*service.TriggerSummary, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	port   int
	logger *slog.Logger
}

func New(ingestor Ingestor, posts PostManager, runner Runner, db Pinger, port int, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	h := &handler{
		ingestor: ingestor,
		posts:    posts,
		runner:   runner,
		db:       db,
		logger:   logger.With("component", "http"),
	}

	e.GET("/healthz", h.Health)

	e.POST("/webhooks/:site", h.Webhook)
	e.GET("/webhooks/:site", h.WebhookHandshake)

	e.GET("/trigger", h.Trigger)
	e.POST("/trigger", h.Trigger)

	e.POST("/content", h.CreateContent)
	e.GET("/content/:id", h.GetContent)
	e.PUT("/content/:id", h.UpdateContent)
	e.DELETE("/content/:id", h.DeleteContent)
	e.GET("/content/:id/sync-status", h.SyncStatus)
	e.POST("/content/:id/push", h.Push)

	e.POST("/posts", h.CreatePosts)
	e.GET("/posts/:id", h.GetPost)
	e.POST("/posts/:id/cancel", h.CancelPost)

	return &Server{echo: e, port: port, logger: logger}
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "port", s.port)
	return s.echo.Start(fmt.Sprintf(":%d", s.port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
