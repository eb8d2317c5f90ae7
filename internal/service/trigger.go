package service

import (
	"context"
	"time"

	"pubsync/internal/domain"
)

// TriggerSummary is returned to the external trigger caller: what one
// combined pass drained and published.
type TriggerSummary struct {
	Sync    domain.SyncRunStats    `json:"sync"`
	Publish domain.PublishRunStats `json:"publish"`
}

// TriggerRunner is the single entry point the periodic trigger invokes: one
// sync-event drain followed by one due-post pass. Safe to invoke repeatedly
// and concurrently; claims keep the work single-shot per item.
type TriggerRunner struct {
	engine  *SyncEngine
	publish *PublishService
}

func NewTriggerRunner(engine *SyncEngine, publish *PublishService) *TriggerRunner {
	return &TriggerRunner{engine: engine, publish: publish}
}

func (t *TriggerRunner) Run(ctx context.Context) (*TriggerSummary, error) {
	summary := &TriggerSummary{}

	syncStats, err := t.engine.DrainEvents(ctx)
	if syncStats != nil {
		summary.Sync = *syncStats
	}
	if err != nil {
		return summary, err
	}

	publishStats, err := t.publish.ProcessDuePosts(ctx, time.Now().UTC())
	if publishStats != nil {
		summary.Publish = *publishStats
	}
	return summary, err
}
