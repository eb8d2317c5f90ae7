package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pubsync/internal/adapter"
	"pubsync/internal/config"
	"pubsync/internal/domain"
)

// PublishService derives platform-specific posts from canonical content and
// carries each one to a terminal state without duplicate publication, even
// under overlapping trigger invocations.
type PublishService struct {
	posts    PostStore
	rules    RuleStore
	content  ContentStore
	adapters map[domain.Platform]SocialAdapter
	accounts map[domain.Platform]config.SocialAccountConfig
	outcomes OutcomePublisher
	logger   *slog.Logger
	cfg      config.PublishConfig
}

func NewPublishService(
	posts PostStore,
	rules RuleStore,
	content ContentStore,
	adapters []SocialAdapter,
	accounts []config.SocialAccountConfig,
	outcomes OutcomePublisher,
	logger *slog.Logger,
	cfg config.PublishConfig,
) *PublishService {
	byPlatform := make(map[domain.Platform]SocialAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	byAccount := make(map[domain.Platform]config.SocialAccountConfig, len(accounts))
	for _, a := range accounts {
		byAccount[a.Platform] = a
	}
	return &PublishService{
		posts:    posts,
		rules:    rules,
		content:  content,
		adapters: byPlatform,
		accounts: byAccount,
		outcomes: outcomes,
		logger:   logger.With("component", "publish_service"),
		cfg:      cfg,
	}
}

// DeriveOptions controls post derivation.
type DeriveOptions struct {
	// ExplicitTime overrides the platform's scheduling rule.
	ExplicitTime *time.Time
	// Link appended to the post text, typically the canonical URL.
	Link string
}

// DerivePosts shapes the canonical record into one scheduled post per
// requested platform. Without an explicit time the post is scheduled at the
// next occurrence of the platform's rule.
func (s *PublishService) DerivePosts(ctx context.Context, contentID string, platforms []domain.Platform, opts DeriveOptions) ([]domain.ScheduledPost, error) {
	content, err := s.content.Get(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	if content == nil {
		return nil, ErrContentNotFound
	}

	now := time.Now().UTC()
	created := make([]domain.ScheduledPost, 0, len(platforms))
	for _, platform := range platforms {
		account, ok := s.accounts[platform]
		if !ok {
			return created, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
		}

		scheduledTime, err := s.resolveTime(ctx, platform, opts.ExplicitTime, now)
		if err != nil {
			return created, err
		}

		post := domain.ScheduledPost{
			ID:             uuid.NewString(),
			OrganizationID: content.OrganizationID,
			ContentID:      &content.ID,
			Platform:       platform,
			AccountRef:     account.AccountRef,
			Status:         domain.PostScheduled,
			ScheduledTime:  scheduledTime,
			Payload:        shapePayload(platform, content, opts.Link),
			MaxRetries:     s.cfg.MaxRetries,
		}
		if err := s.posts.Create(ctx, &post); err != nil {
			return created, fmt.Errorf("create post for %s: %w", platform, err)
		}
		created = append(created, post)

		s.logger.Info("derived scheduled post",
			"post_id", post.ID,
			"content_id", contentID,
			"platform", platform,
			"scheduled_time", scheduledTime,
		)
	}
	return created, nil
}

// SchedulePost creates a platform-only post not derived from canonical
// content.
func (s *PublishService) SchedulePost(ctx context.Context, platform domain.Platform, payload domain.PostPayload, explicitTime *time.Time) (*domain.ScheduledPost, error) {
	account, ok := s.accounts[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
	}

	scheduledTime, err := s.resolveTime(ctx, platform, explicitTime, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	post := &domain.ScheduledPost{
		ID:             uuid.NewString(),
		OrganizationID: account.OrganizationID,
		Platform:       platform,
		AccountRef:     account.AccountRef,
		Status:         domain.PostScheduled,
		ScheduledTime:  scheduledTime,
		Payload:        payload,
		MaxRetries:     s.cfg.MaxRetries,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

func (s *PublishService) resolveTime(ctx context.Context, platform domain.Platform, explicit *time.Time, now time.Time) (time.Time, error) {
	if explicit != nil {
		return explicit.UTC(), nil
	}
	rule, err := s.rules.Get(ctx, platform)
	if err != nil {
		return time.Time{}, fmt.Errorf("load scheduling rule: %w", err)
	}
	if rule == nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoSchedulingRule, platform)
	}
	next, err := rule.NextOccurrence(now)
	if err != nil {
		return time.Time{}, err
	}
	return next.UTC(), nil
}

// GetPost returns the post's current status and error without triggering
// any work.
func (s *PublishService) GetPost(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// CancelPost cancels a post that has not been claimed yet. Cancellation
// after a claim is rejected: the post is already committed to a publish
// attempt.
func (s *PublishService) CancelPost(ctx context.Context, id string) error {
	ok, err := s.posts.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}
	return fmt.Errorf("%w: status is %s", ErrNotCancellable, post.Status)
}

// ProcessDuePosts publishes every due post exactly once. Each post is
// claimed with a conditional transition before its adapter call so
// overlapping passes skip instead of double-publishing; failures are
// isolated per post.
func (s *PublishService) ProcessDuePosts(ctx context.Context, now time.Time) (*domain.PublishRunStats, error) {
	start := time.Now()
	stats := &domain.PublishRunStats{}

	released, err := s.posts.ReleaseStaleClaims(ctx, now.Add(-s.cfg.ClaimTimeout))
	if err != nil {
		return nil, fmt.Errorf("release stale claims: %w", err)
	}
	stats.Released = released
	if released > 0 {
		s.logger.Warn("released stale post claims", "count", released)
	}

	due, err := s.posts.Due(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due posts: %w", err)
	}
	stats.Due = len(due)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range due {
		post := due[i]
		g.Go(func() error {
			claimed, err := s.posts.Claim(gctx, post.ID)
			if err != nil {
				s.logger.Error("claim post", "post_id", post.ID, "error", err)
				return nil
			}
			if !claimed {
				// Another pass won the claim; skip, don't retry.
				return nil
			}

			result := s.publishPost(gctx, &post)

			mu.Lock()
			stats.Claimed++
			switch result {
			case postPublished:
				stats.Published++
			case postRetried:
				stats.Retried++
			case postFailed:
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	if stats.Claimed > 0 || stats.Released > 0 {
		s.logger.Info("processed due posts",
			"due", stats.Due,
			"claimed", stats.Claimed,
			"published", stats.Published,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"released", stats.Released,
			"duration", stats.Duration,
		)
	}
	return stats, nil
}

type postResult int

const (
	postPublished postResult = iota
	postRetried
	postFailed
)

func (s *PublishService) publishPost(ctx context.Context, post *domain.ScheduledPost) postResult {
	ad, ok := s.adapters[post.Platform]
	if !ok {
		return s.failPost(ctx, post, post.RetryCount, fmt.Errorf("%w: %s", ErrNoAdapter, post.Platform))
	}

	platformPostID, err := ad.PublishPost(ctx, post.Payload)
	if err != nil {
		retries := post.RetryCount + 1
		if adapter.IsTransient(err) && retries <= post.MaxRetries {
			next := time.Now().UTC().Add(s.cfg.RetryDelay)
			if rerr := s.posts.RescheduleRetry(ctx, post.ID, retries, next, err.Error()); rerr != nil {
				s.logger.Error("reschedule post", "post_id", post.ID, "error", rerr)
			}
			s.logger.Warn("publish attempt failed, will retry",
				"post_id", post.ID,
				"platform", post.Platform,
				"retry", retries,
				"next_attempt_at", next,
				"error", err,
			)
			return postRetried
		}
		return s.failPost(ctx, post, retries, err)
	}

	publishedAt := time.Now().UTC()
	if err := s.posts.MarkPublished(ctx, post.ID, platformPostID, publishedAt); err != nil {
		s.logger.Error("mark post published", "post_id", post.ID, "error", err)
	}
	s.publishOutcome(ctx, &domain.Outcome{
		Kind:      domain.OutcomePublish,
		PostID:    post.ID,
		Platform:  post.Platform,
		Status:    string(domain.PostPublished),
		Timestamp: publishedAt,
	})
	s.logger.Info("post published",
		"post_id", post.ID,
		"platform", post.Platform,
		"platform_post_id", platformPostID,
	)
	return postPublished
}

func (s *PublishService) failPost(ctx context.Context, post *domain.ScheduledPost, retries int, cause error) postResult {
	if err := s.posts.MarkFailed(ctx, post.ID, retries, cause.Error()); err != nil {
		s.logger.Error("mark post failed", "post_id", post.ID, "error", err)
	}
	s.publishOutcome(ctx, &domain.Outcome{
		Kind:      domain.OutcomePublish,
		PostID:    post.ID,
		Platform:  post.Platform,
		Status:    string(domain.PostFailed),
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
	s.logger.Error("post failed terminally",
		"post_id", post.ID,
		"platform", post.Platform,
		"retries", retries,
		"error", cause,
	)
	return postFailed
}

func (s *PublishService) publishOutcome(ctx context.Context, outcome *domain.Outcome) {
	if s.outcomes == nil {
		return
	}
	if err := s.outcomes.Publish(ctx, outcome); err != nil {
		s.logger.Error("publish outcome", "error", err)
	}
}
