package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pubsync/internal/config"
	"pubsync/internal/domain"
	"pubsync/internal/webhook"
)

// Ingest verifies and applies one inbound webhook delivery. The raw body is
// authenticated against the site's shared secret before any parsing; an
// unverified payload never reaches the content store.
//
// Redelivered payloads are no-ops (hash match), conflicting concurrent edits
// resolve last-write-wins by change timestamp with the canonical store
// winning ties, and force lets an operator override the timestamp check.
func (s *SyncEngine) Ingest(ctx context.Context, siteID, signature string, raw []byte, force bool) error {
	site, ok := s.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSite, siteID)
	}
	if !webhook.Verify(site.WebhookSecret, signature, raw) {
		return ErrSignatureInvalid
	}

	evt, err := webhook.Decode(site.Platform, raw)
	if err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}
	fields := evt.Entity.Canonical()
	logger := s.logger.With(
		"site", siteID,
		"platform", site.Platform,
		"external_id", fields.ExternalID,
		"operation", evt.Operation,
	)

	mapping, err := s.mappings.GetByExternal(ctx, site.Platform, fields.ExternalID)
	if err != nil {
		return fmt.Errorf("resolve mapping: %w", err)
	}

	if evt.Operation == domain.OpDelete {
		return s.ingestDelete(ctx, site.Platform, mapping)
	}

	if mapping == nil {
		if !site.AllowInboundCreate {
			logger.Info("dropping inbound event for unmapped entity")
			return nil
		}
		return s.ingestCreate(ctx, site, fields)
	}

	content, err := s.content.Get(ctx, mapping.ContentID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}
	if content == nil {
		logger.Warn("mapping references missing content, dropping event", "content_id", mapping.ContentID)
		return nil
	}

	candidate := *content
	applyCanonical(&candidate, fields)

	if domain.ContentHash(&candidate) == domain.ContentHash(content) {
		logger.Debug("inbound event is a no-op, content unchanged")
		return nil
	}

	// A delivery without a usable change timestamp is treated as current,
	// not stale: the payload already differs from the canonical copy.
	if fields.ModifiedAt.IsZero() {
		fields.ModifiedAt = time.Now().UTC()
	}

	// Last write wins; on an exact timestamp tie the canonical store wins.
	if !force && !fields.ModifiedAt.After(content.UpdatedAt) {
		logger.Info("dropping stale inbound change",
			"inbound_modified_at", fields.ModifiedAt,
			"canonical_updated_at", content.UpdatedAt,
		)
		return nil
	}

	candidate.UpdatedAt = fields.ModifiedAt

	hash := domain.ContentHash(&candidate)
	now := time.Now().UTC()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.content.Update(txCtx, &candidate); err != nil {
			return fmt.Errorf("apply inbound update: %w", err)
		}
		mapping.LastSyncedAt = &now
		mapping.LastSyncedHash = hash
		mapping.Status = domain.SyncSynced
		mapping.LastError = nil
		return s.mappings.Upsert(txCtx, mapping)
	})
	if err != nil {
		return err
	}

	logger.Info("applied inbound update", "content_id", candidate.ID)

	// Fan out to the other targets; the origin platform is excluded so the
	// change does not echo back where it came from.
	candidate.OriginPlatform = site.Platform
	return s.EnqueueForTargets(ctx, &candidate, domain.OpUpdate)
}

func (s *SyncEngine) ingestCreate(ctx context.Context, site config.SiteConfig, fields webhook.Canonical) error {
	now := time.Now().UTC()
	updatedAt := fields.ModifiedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	content := &domain.ContentRecord{
		ID:             uuid.NewString(),
		OrganizationID: site.OrganizationID,
		ContentType:    fields.ContentType,
		Publishing: domain.PublishingOptions{
			// Inbound-created content targets only its origin until an
			// editor opts into more platforms.
			Targets: map[domain.Platform]bool{site.Platform: true},
		},
		CreatedAt: now,
		UpdatedAt: updatedAt,
	}
	applyCanonical(content, fields)
	content.UpdatedAt = updatedAt

	hash := domain.ContentHash(content)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.content.Create(txCtx, content); err != nil {
			return fmt.Errorf("create content from inbound event: %w", err)
		}
		return s.mappings.Upsert(txCtx, &domain.SyncMapping{
			ContentID:      content.ID,
			OrganizationID: site.OrganizationID,
			Platform:       site.Platform,
			ExternalID:     fields.ExternalID,
			LastSyncedAt:   &now,
			LastSyncedHash: hash,
			Status:         domain.SyncSynced,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("created content from inbound event",
		"content_id", content.ID,
		"platform", site.Platform,
		"external_id", fields.ExternalID,
	)
	return nil
}

// ingestDelete removes the canonical record and propagates the delete to
// the other mapped platforms. An inbound delete for an unmapped entity is a
// no-op: the target is already absent on both sides.
func (s *SyncEngine) ingestDelete(ctx context.Context, origin domain.Platform, mapping *domain.SyncMapping) error {
	if mapping == nil {
		return nil
	}
	siblings, err := s.mappings.ListByContent(ctx, mapping.ContentID)
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	for _, m := range siblings {
		if m.Platform == origin {
			continue
		}
		if _, ok := s.adapters[m.Platform]; !ok {
			continue
		}
		if err := s.enqueueDelete(ctx, mapping.ContentID, m.Platform); err != nil {
			return err
		}
	}
	return s.content.Delete(ctx, mapping.ContentID)
}

func applyCanonical(content *domain.ContentRecord, fields webhook.Canonical) {
	content.Title = fields.Title
	content.Body = fields.Body
	if fields.Excerpt != "" {
		content.Excerpt = fields.Excerpt
	}
	content.Status = fields.Status
	if fields.ContentType != "" {
		content.ContentType = fields.ContentType
	}
}
