package domain

import "time"

// SyncRunStats summarizes one drain pass over the sync event queue.
type SyncRunStats struct {
	Claimed   int           `json:"claimed"`
	Succeeded int           `json:"succeeded"`
	Retried   int           `json:"retried"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// PublishRunStats summarizes one processing pass over due scheduled posts.
type PublishRunStats struct {
	Due       int           `json:"due"`
	Claimed   int           `json:"claimed"`
	Published int           `json:"published"`
	Retried   int           `json:"retried"`
	Failed    int           `json:"failed"`
	Released  int           `json:"released"`
	Duration  time.Duration `json:"duration"`
}
