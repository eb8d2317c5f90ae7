// Package wordpress pushes canonical content to a WordPress site through its
// REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"pubsync/internal/adapter"
	"pubsync/internal/domain"
)

const platformName = string(domain.PlatformWordPress)

// Config holds WordPress adapter configuration.
type Config struct {
	SiteID            string
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type Adapter struct {
	httpClient *http.Client
	siteID     string
	baseURL    string
	token      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 5
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		siteID:     cfg.SiteID,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.With("platform", platformName, "site", cfg.SiteID),
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformWordPress
}

func (a *Adapter) SiteID() string {
	return a.siteID
}

// Create publishes a new post and returns its WordPress ID.
func (a *Adapter) Create(ctx context.Context, content *domain.ContentRecord) (string, error) {
	var created Post
	err := a.doRequest(ctx, http.MethodPost, a.postsURL(""), shapePost(content), &created)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(created.ID, 10), nil
}

// Update pushes changed content to an existing post.
func (a *Adapter) Update(ctx context.Context, externalID string, content *domain.ContentRecord) error {
	return a.doRequest(ctx, http.MethodPut, a.postsURL(externalID), shapePost(content), nil)
}

// Delete removes the post. A not-found response surfaces as a
// KindNotFound error; the caller treats it as success.
func (a *Adapter) Delete(ctx context.Context, externalID string) error {
	return a.doRequest(ctx, http.MethodDelete, a.postsURL(externalID)+"?force=true", nil, nil)
}

func (a *Adapter) postsURL(externalID string) string {
	if externalID == "" {
		return a.baseURL + "/wp-json/wp/v2/posts"
	}
	return a.baseURL + "/wp-json/wp/v2/posts/" + externalID
}

func (a *Adapter) doRequest(ctx context.Context, method, url string, payload, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return adapter.Transient(platformName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		msg := "unexpected status"
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return adapter.FromStatus(platformName, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func shapePost(content *domain.ContentRecord) Post {
	return Post{
		Title:   Text{Raw: content.Title},
		Content: Text{Raw: content.Body},
		Excerpt: Text{Raw: content.Excerpt},
		Status:  wpStatus(content.Status),
	}
}

func wpStatus(s domain.ContentStatus) string {
	switch s {
	case domain.ContentPublished:
		return "publish"
	case domain.ContentArchived:
		return "private"
	default:
		return "draft"
	}
}
