// Package linkedin publishes scheduled posts through a LinkedIn account.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"pubsync/internal/adapter"
	"pubsync/internal/domain"
)

const platformName = string(domain.PlatformLinkedIn)

// MaxPostLength is the platform's character limit for post text; the
// publish service truncates derived payloads to fit.
const MaxPostLength = 3000

type Config struct {
	AccountRef        string
	BaseURL           string
	Token             string
	Visibility        string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type Adapter struct {
	httpClient *http.Client
	accountRef string
	baseURL    string
	token      string
	visibility string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type postRequest struct {
	Text        string   `json:"text"`
	MediaAssets []string `json:"mediaAssets,omitempty"`
	Visibility  string   `json:"visibility"`
}

type postResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}
	visibility := cfg.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout},
		accountRef: cfg.AccountRef,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		visibility: visibility,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.With("platform", platformName, "account", cfg.AccountRef),
	}
}

func (a *Adapter) Platform() domain.Platform {
	return domain.PlatformLinkedIn
}

func (a *Adapter) AccountRef() string {
	return a.accountRef
}

// PublishPost creates the post and returns the platform post identifier
// used for later analytics lookups.
func (a *Adapter) PublishPost(ctx context.Context, payload domain.PostPayload) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	visibility := payload.Visibility
	if visibility == "" {
		visibility = a.visibility
	}
	body, err := json.Marshal(postRequest{
		Text:        payload.Text,
		MediaAssets: payload.MediaAssets,
		Visibility:  visibility,
	})
	if err != nil {
		return "", fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/posts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", adapter.Transient(platformName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		msg := "unexpected status"
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return "", adapter.FromStatus(platformName, resp.StatusCode, msg)
	}

	var created postResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return created.ID, nil
}
