// Package drupal pushes canonical content to a Drupal site through its
// article content API.
package drupal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"pubsync/internal/adapter"
	"pubsync/internal/domain"
)

const platformName = string(domain.PlatformDrupal)

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
	return domain.PlatformDrupal
}

func (a *Adapter) SiteID() string {
	return a.siteID
}

func (a *Adapter) Create(ctx context.Context, content *domain.ContentRecord) (string, error) {
	var created articleEnvelope
	err := a.doRequest(ctx, http.MethodPost, a.baseURL+"/api/articles", articleEnvelope{Article: shapeArticle(content)}, &created)
	if err != nil {
		return "", err
	}
	return created.Article.ID, nil
}

func (a *Adapter) Update(ctx context.Context, externalID string, content *domain.ContentRecord) error {
	url := a.baseURL + "/api/articles/" + externalID
	return a.doRequest(ctx, http.MethodPut, url, articleEnvelope{Article: shapeArticle(content)}, nil)
}

func (a *Adapter) Delete(ctx context.Context, externalID string) error {
	return a.doRequest(ctx, http.MethodDelete, a.baseURL+"/api/articles/"+externalID, nil, nil)
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

func shapeArticle(content *domain.ContentRecord) Article {
	return Article{
		Title:   content.Title,
		Body:    content.Body,
		Summary: content.Excerpt,
		Status:  content.Status == domain.ContentPublished,
	}
}
