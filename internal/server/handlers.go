package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"pubsync/internal/domain"
	"pubsync/internal/service"
)

// Signature headers accepted on webhook deliveries, in preference order.
var signatureHeaders = []string{"X-Webhook-Signature", "X-Hub-Signature-256"}

type handler struct {
	ingestor Ingestor
	posts    PostManager
	runner   Runner
	db       Pinger
	logger   *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func (h *handler) Health(c echo.Context) error {
	if err := h.db.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "database unreachable"})
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Webhook verifies and ingests one inbound delivery. The body is read raw;
// verification happens before any parsing.
func (h *handler) Webhook(c echo.Context) error {
	siteID := c.Param("site")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
	}

	var signature string
	for _, header := range signatureHeaders {
		if v := c.Request().Header.Get(header); v != "" {
			signature = v
			break
		}
	}

	force := c.QueryParam("force") == "true"
	err = h.ingestor.Ingest(c.Request().Context(), siteID, signature, body, force)
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, StatusResponse{Status: "accepted"})
	case errors.Is(err, service.ErrUnknownSite):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown site"})
	case errors.Is(err, service.ErrSignatureInvalid):
		h.logger.Warn("rejected webhook with invalid signature", "site", siteID)
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
	default:
		h.logger.Error("webhook ingestion failed", "site", siteID, "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
}

// WebhookHandshake answers the platforms' subscription challenges by echoing
// the challenge token back.
func (h *handler) WebhookHandshake(c echo.Context) error {
	for _, param := range []string{"challenge", "hub.challenge"} {
		if v := c.QueryParam(param); v != "" {
			return c.String(http.StatusOK, v)
		}
	}
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Trigger runs one combined processing pass. Idempotent: repeated calls
// find no remaining claimable work.
func (h *handler) Trigger(c echo.Context) error {
	summary, err := h.runner.Run(c.Request().Context())
	if err != nil {
		h.logger.Error("trigger pass failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

type contentRequest struct {
	Title          string                   `json:"title"`
	Body           string                   `json:"body"`
	Excerpt        string                   `json:"excerpt"`
	Status         domain.ContentStatus     `json:"status"`
	ContentType    string                   `json:"content_type"`
	OrganizationID string                   `json:"organization_id"`
	Publishing     domain.PublishingOptions `json:"publishing_options"`
}

func (h *handler) CreateContent(c echo.Context) error {
	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Status == "" {
		req.Status = domain.ContentDraft
	}
	if req.ContentType == "" {
		req.ContentType = "post"
	}
	content := &domain.ContentRecord{
		Title:          req.Title,
		Body:           req.Body,
		Excerpt:        req.Excerpt,
		Status:         req.Status,
		ContentType:    req.ContentType,
		OrganizationID: req.OrganizationID,
		Publishing:     req.Publishing,
	}
	if err := h.ingestor.SaveContent(c.Request().Context(), content, true); err != nil {
		h.logger.Error("create content failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, content)
}

func (h *handler) GetContent(c echo.Context) error {
	content, err := h.ingestor.GetContent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if content == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "content not found"})
	}
	return c.JSON(http.StatusOK, content)
}

func (h *handler) UpdateContent(c echo.Context) error {
	existing, err := h.ingestor.GetContent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if existing == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "content not found"})
	}

	var req contentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	existing.Title = req.Title
	existing.Body = req.Body
	existing.Excerpt = req.Excerpt
	if req.Status != "" {
		existing.Status = req.Status
	}
	if req.ContentType != "" {
		existing.ContentType = req.ContentType
	}
	if req.Publishing.Targets != nil {
		existing.Publishing = req.Publishing
	}

	if err := h.ingestor.SaveContent(c.Request().Context(), existing, false); err != nil {
		h.logger.Error("update content failed", "content_id", existing.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, existing)
}

func (h *handler) DeleteContent(c echo.Context) error {
	if err := h.ingestor.DeleteContent(c.Request().Context(), c.Param("id")); err != nil {
		h.logger.Error("delete content failed", "content_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusAccepted, StatusResponse{Status: "deleting"})
}

// SyncStatus reports per-platform sync state without triggering new work.
func (h *handler) SyncStatus(c echo.Context) error {
	mappings, err := h.ingestor.SyncStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, mappings)
}

type pushRequest struct {
	Platform  domain.Platform      `json:"platform"`
	Operation domain.SyncOperation `json:"operation"`
	Force     bool                 `json:"force"`
}

func (h *handler) Push(c echo.Context) error {
	var req pushRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Platform == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "platform is required"})
	}
	if req.Operation == "" {
		req.Operation = domain.OpUpdate
	}

	err := h.ingestor.PushToTarget(c.Request().Context(), c.Param("id"), req.Platform, req.Operation, req.Force)
	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, StatusResponse{Status: "queued"})
	case errors.Is(err, service.ErrContentNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "content not found"})
	case errors.Is(err, service.ErrTargetDisabled), errors.Is(err, service.ErrNoAdapter):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("push failed", "content_id", c.Param("id"), "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

type createPostsRequest struct {
	ContentID string             `json:"content_id"`
	Platforms []domain.Platform  `json:"platforms"`
	Time      *time.Time         `json:"scheduled_time"`
	Link      string             `json:"link"`
	Payload   domain.PostPayload `json:"payload"`
}

// CreatePosts derives posts from canonical content when content_id is set,
// or schedules a platform-only post from the literal payload otherwise.
func (h *handler) CreatePosts(c echo.Context) error {
	var req createPostsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Platforms) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "platforms is required"})
	}

	ctx := c.Request().Context()
	if req.ContentID != "" {
		created, err := h.posts.DerivePosts(ctx, req.ContentID, req.Platforms, service.DeriveOptions{
			ExplicitTime: req.Time,
			Link:         req.Link,
		})
		if err != nil {
			if errors.Is(err, service.ErrContentNotFound) {
				return c.JSON(http.StatusNotFound, ErrorResponse{Error: "content not found"})
			}
			h.logger.Error("derive posts failed", "content_id", req.ContentID, "error", err)
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, created)
	}

	created := make([]domain.ScheduledPost, 0, len(req.Platforms))
	for _, platform := range req.Platforms {
		post, err := h.posts.SchedulePost(ctx, platform, req.Payload, req.Time)
		if err != nil {
			h.logger.Error("schedule post failed", "platform", platform, "error", err)
			return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		}
		created = append(created, *post)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *handler) GetPost(c echo.Context) error {
	post, err := h.posts.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "post not found"})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, post)
}

func (h *handler) CancelPost(c echo.Context) error {
	err := h.posts.CancelPost(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, StatusResponse{Status: "cancelled"})
	case errors.Is(err, service.ErrPostNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "post not found"})
	case errors.Is(err, service.ErrNotCancellable):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
