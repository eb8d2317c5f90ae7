package service

import (
	"context"
	"encoding/json"
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

// SyncEngine keeps canonical content and each external platform's
// representation convergent. Outbound changes flow through a collapsing
// sync-event queue drained with bounded concurrency; inbound changes arrive
// via Ingest.
type SyncEngine struct {
	content   ContentStore
	mappings  MappingStore
	events    EventStore
	txManager TransactionManager
	adapters  map[domain.Platform]CMSAdapter
	sites     map[string]config.SiteConfig
	outcomes  OutcomePublisher
	logger    *slog.Logger
	cfg       config.SyncConfig
}

func NewSyncEngine(
	content ContentStore,
	mappings MappingStore,
	events EventStore,
	txManager TransactionManager,
	adapters []CMSAdapter,
	sites []config.SiteConfig,
	outcomes OutcomePublisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncEngine {
	byPlatform := make(map[domain.Platform]CMSAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	byID := make(map[string]config.SiteConfig, len(sites))
	for _, s := range sites {
		byID[s.ID] = s
	}
	return &SyncEngine{
		content:   content,
		mappings:  mappings,
		events:    events,
		txManager: txManager,
		adapters:  byPlatform,
		sites:     byID,
		outcomes:  outcomes,
		logger:    logger.With("component", "sync_engine"),
		cfg:       cfg,
	}
}

// deletePayload snapshots the external identity at enqueue time so a delete
// can still be executed after the mapping row has cascaded away.
type deletePayload struct {
	ExternalID string `json:"external_id"`
}

// PushToTarget enqueues outbound propagation of a content change to one
// platform. Pushing unchanged content is a no-op: if the mapping's stored
// hash matches the current hash, nothing is enqueued.
func (s *SyncEngine) PushToTarget(ctx context.Context, contentID string, platform domain.Platform, op domain.SyncOperation, force bool) error {
	if _, ok := s.adapters[platform]; !ok {
		return fmt.Errorf("%w: %s", ErrNoAdapter, platform)
	}

	if op == domain.OpDelete {
		return s.enqueueDelete(ctx, contentID, platform)
	}

	content, err := s.content.Get(ctx, contentID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if content == nil {
		return ErrContentNotFound
	}
	if !force && !content.Publishing.TargetEnabled(platform) {
		return ErrTargetDisabled
	}

	hash := domain.ContentHash(content)
	mapping, err := s.mappings.Get(ctx, contentID, platform)
	if err != nil {
		return fmt.Errorf("load mapping: %w", err)
	}
	if mapping != nil && mapping.LastSyncedHash == hash && !force {
		s.logger.Debug("push skipped, content unchanged",
			"content_id", contentID,
			"platform", platform,
		)
		return nil
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("snapshot content: %w", err)
	}

	return s.events.Enqueue(ctx, &domain.SyncEvent{
		ID:          uuid.NewString(),
		ContentID:   contentID,
		Platform:    platform,
		Direction:   domain.DirectionOutbound,
		Operation:   op,
		Payload:     payload,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}

func (s *SyncEngine) enqueueDelete(ctx context.Context, contentID string, platform domain.Platform) error {
	mapping, err := s.mappings.Get(ctx, contentID, platform)
	if err != nil {
		return fmt.Errorf("load mapping: %w", err)
	}
	var externalID string
	if mapping != nil {
		externalID = mapping.ExternalID
	}
	payload, err := json.Marshal(deletePayload{ExternalID: externalID})
	if err != nil {
		return err
	}
	return s.events.Enqueue(ctx, &domain.SyncEvent{
		ID:          uuid.NewString(),
		ContentID:   contentID,
		Platform:    platform,
		Direction:   domain.DirectionOutbound,
		Operation:   domain.OpDelete,
		Payload:     payload,
		MaxAttempts: s.cfg.MaxAttempts,
	})
}

// EnqueueForTargets fans a content change out to every enabled platform,
// excluding the platform the change originated from.
func (s *SyncEngine) EnqueueForTargets(ctx context.Context, content *domain.ContentRecord, op domain.SyncOperation) error {
	for platform := range s.adapters {
		if platform == content.OriginPlatform {
			continue
		}
		if !content.Publishing.TargetEnabled(platform) {
			continue
		}
		if err := s.PushToTarget(ctx, content.ID, platform, op, false); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", op, platform, err)
		}
	}
	return nil
}

// SaveContent persists a locally-edited record and fans the change out.
func (s *SyncEngine) SaveContent(ctx context.Context, content *domain.ContentRecord, isNew bool) error {
	if isNew {
		if content.ID == "" {
			content.ID = uuid.NewString()
		}
		if err := s.content.Create(ctx, content); err != nil {
			return fmt.Errorf("create content: %w", err)
		}
	} else {
		content.UpdatedAt = time.Now().UTC()
		if err := s.content.Update(ctx, content); err != nil {
			return fmt.Errorf("update content: %w", err)
		}
	}
	return s.EnqueueForTargets(ctx, content, domain.OpUpdate)
}

// DeleteContent enqueues deletes for every mapped platform, then removes the
// canonical record. Mapping rows cascade; the delete events carry the
// external IDs they need.
func (s *SyncEngine) DeleteContent(ctx context.Context, contentID string) error {
	mappings, err := s.mappings.ListByContent(ctx, contentID)
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	for _, m := range mappings {
		if _, ok := s.adapters[m.Platform]; !ok {
			continue
		}
		if err := s.enqueueDelete(ctx, contentID, m.Platform); err != nil {
			return err
		}
	}
	return s.content.Delete(ctx, contentID)
}

// GetContent reads a canonical record; nil when it does not exist.
func (s *SyncEngine) GetContent(ctx context.Context, id string) (*domain.ContentRecord, error) {
	return s.content.Get(ctx, id)
}

// SyncStatus returns the per-platform sync state of a record without
// triggering any work.
func (s *SyncEngine) SyncStatus(ctx context.Context, contentID string) ([]domain.SyncMapping, error) {
	return s.mappings.ListByContent(ctx, contentID)
}

// DrainEvents processes due queued events with bounded concurrency. Failures
// are isolated per event; the pass itself only fails on storage errors or
// context cancellation.
func (s *SyncEngine) DrainEvents(ctx context.Context) (*domain.SyncRunStats, error) {
	start := time.Now()
	now := start.UTC()
	stats := &domain.SyncRunStats{}

	released, err := s.events.ReleaseStale(ctx, now.Add(-s.cfg.RunTimeout))
	if err != nil {
		return nil, fmt.Errorf("release stale events: %w", err)
	}
	if released > 0 {
		s.logger.Warn("released stale in-progress events", "count", released)
	}

	// Housekeeping, best effort: a failed purge must not block the drain.
	if s.cfg.EventRetention > 0 {
		purged, err := s.events.PurgeTerminal(ctx, now.Add(-s.cfg.EventRetention))
		if err != nil {
			s.logger.Error("purge terminal events", "error", err)
		} else if purged > 0 {
			s.logger.Debug("purged terminal events", "count", purged)
		}
	}

	due, err := s.events.DueQueued(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due events: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range due {
		ev := due[i]
		g.Go(func() error {
			claimed, err := s.events.Claim(gctx, ev.ID)
			if err != nil {
				s.logger.Error("claim event", "event_id", ev.ID, "error", err)
				return nil
			}
			if !claimed {
				return nil
			}

			result := s.processEvent(gctx, &ev)

			mu.Lock()
			stats.Claimed++
			switch result {
			case eventSucceeded:
				stats.Succeeded++
			case eventRetried:
				stats.Retried++
			case eventFailed:
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
	if stats.Claimed > 0 {
		s.logger.Info("drained sync events",
			"claimed", stats.Claimed,
			"succeeded", stats.Succeeded,
			"retried", stats.Retried,
			"failed", stats.Failed,
			"duration", stats.Duration,
		)
	}
	return stats, nil
}

type eventResult int

const (
	eventSucceeded eventResult = iota
	eventRetried
	eventFailed
)

func (s *SyncEngine) processEvent(ctx context.Context, ev *domain.SyncEvent) eventResult {
	ad, ok := s.adapters[ev.Platform]
	if !ok {
		return s.failEvent(ctx, ev, fmt.Errorf("%w: %s", ErrNoAdapter, ev.Platform))
	}

	if ev.Operation == domain.OpDelete {
		return s.processDelete(ctx, ev, ad)
	}

	content, err := s.content.Get(ctx, ev.ContentID)
	if err != nil {
		return s.retryOrFailEvent(ctx, ev, err)
	}
	if content == nil {
		return s.failEvent(ctx, ev, ErrContentNotFound)
	}

	mapping, err := s.mappings.Get(ctx, ev.ContentID, ev.Platform)
	if err != nil {
		return s.retryOrFailEvent(ctx, ev, err)
	}

	hash := domain.ContentHash(content)
	now := time.Now().UTC()

	if mapping == nil || mapping.ExternalID == "" {
		externalID, err := ad.Create(ctx, content)
		if err != nil {
			return s.retryOrFailEvent(ctx, ev, err)
		}
		err = s.mappings.Upsert(ctx, &domain.SyncMapping{
			ContentID:      ev.ContentID,
			OrganizationID: content.OrganizationID,
			Platform:       ev.Platform,
			ExternalID:     externalID,
			LastSyncedAt:   &now,
			LastSyncedHash: hash,
			Status:         domain.SyncSynced,
		})
		if err != nil {
			return s.retryOrFailEvent(ctx, ev, err)
		}
	} else {
		if err := ad.Update(ctx, mapping.ExternalID, content); err != nil {
			return s.retryOrFailEvent(ctx, ev, err)
		}
		mapping.LastSyncedAt = &now
		mapping.LastSyncedHash = hash
		mapping.Status = domain.SyncSynced
		mapping.LastError = nil
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			return s.retryOrFailEvent(ctx, ev, err)
		}
	}

	return s.succeedEvent(ctx, ev)
}

func (s *SyncEngine) processDelete(ctx context.Context, ev *domain.SyncEvent, ad CMSAdapter) eventResult {
	var snapshot deletePayload
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &snapshot)
	}
	externalID := snapshot.ExternalID
	if externalID == "" {
		mapping, err := s.mappings.Get(ctx, ev.ContentID, ev.Platform)
		if err != nil {
			return s.retryOrFailEvent(ctx, ev, err)
		}
		if mapping != nil {
			externalID = mapping.ExternalID
		}
	}

	// Nothing was ever created on the target; deletion is trivially done.
	if externalID == "" {
		return s.succeedEvent(ctx, ev)
	}

	err := ad.Delete(ctx, externalID)
	if err != nil && !adapter.IsNotFound(err) {
		return s.retryOrFailEvent(ctx, ev, err)
	}

	// Not-found on delete means the target is already absent: success.
	if err := s.mappings.Delete(ctx, ev.ContentID, ev.Platform); err != nil {
		s.logger.Error("delete mapping", "content_id", ev.ContentID, "platform", ev.Platform, "error", err)
	}
	return s.succeedEvent(ctx, ev)
}

func (s *SyncEngine) succeedEvent(ctx context.Context, ev *domain.SyncEvent) eventResult {
	if err := s.events.MarkSucceeded(ctx, ev.ID); err != nil {
		s.logger.Error("mark event succeeded", "event_id", ev.ID, "error", err)
	}
	s.publishOutcome(ctx, &domain.Outcome{
		Kind:      domain.OutcomeSync,
		Operation: ev.Operation,
		ContentID: ev.ContentID,
		Platform:  ev.Platform,
		Status:    string(domain.EventSucceeded),
		Timestamp: time.Now().UTC(),
	})
	return eventSucceeded
}

// retryOrFailEvent reschedules transient failures with backoff until the
// attempt budget runs out; permanent failures terminate immediately and
// surface on the mapping.
func (s *SyncEngine) retryOrFailEvent(ctx context.Context, ev *domain.SyncEvent, cause error) eventResult {
	attempts := ev.AttemptCount + 1
	if adapter.IsTransient(cause) && attempts < ev.MaxAttempts {
		ev.AttemptCount = attempts
		next := time.Now().UTC().Add(domain.RetryBackoff(attempts))
		if err := s.events.Reschedule(ctx, ev, next, cause.Error()); err != nil {
			s.logger.Error("reschedule event", "event_id", ev.ID, "error", err)
		}
		s.logger.Warn("sync attempt failed, will retry",
			"content_id", ev.ContentID,
			"platform", ev.Platform,
			"attempt", attempts,
			"next_attempt_at", next,
			"error", cause,
		)
		return eventRetried
	}
	ev.AttemptCount = attempts
	return s.failEvent(ctx, ev, cause)
}

func (s *SyncEngine) failEvent(ctx context.Context, ev *domain.SyncEvent, cause error) eventResult {
	if err := s.events.MarkFailed(ctx, ev.ID, ev.AttemptCount, cause.Error()); err != nil {
		s.logger.Error("mark event failed", "event_id", ev.ID, "error", err)
	}
	msg := cause.Error()
	if err := s.mappings.SetStatus(ctx, ev.ContentID, ev.Platform, domain.SyncFailed, &msg); err != nil {
		s.logger.Error("surface failure on mapping", "content_id", ev.ContentID, "platform", ev.Platform, "error", err)
	}
	s.publishOutcome(ctx, &domain.Outcome{
		Kind:      domain.OutcomeSync,
		Operation: ev.Operation,
		ContentID: ev.ContentID,
		Platform:  ev.Platform,
		Status:    string(domain.EventFailed),
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
	s.logger.Error("sync event failed terminally",
		"content_id", ev.ContentID,
		"platform", ev.Platform,
		"attempts", ev.AttemptCount,
		"error", cause,
	)
	return eventFailed
}

func (s *SyncEngine) publishOutcome(ctx context.Context, outcome *domain.Outcome) {
	if s.outcomes == nil {
		return
	}
	if err := s.outcomes.Publish(ctx, outcome); err != nil {
		s.logger.Error("publish outcome", "error", err)
	}
}
