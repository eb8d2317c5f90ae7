package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"pubsync/internal/domain"
)

// RuleStore holds the read-only scheduling rules table, loaded from
// configuration at startup.
type RuleStore struct {
	db *sqlx.DB
}

func NewRuleStore(db *sqlx.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) Upsert(ctx context.Context, r *domain.SchedulingRule) error {
	query := `
		INSERT INTO scheduling_rules (platform, hour, minute, timezone, skip_weekends)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (platform) DO UPDATE SET
			hour = EXCLUDED.hour,
			minute = EXCLUDED.minute,
			timezone = EXCLUDED.timezone,
			skip_weekends = EXCLUDED.skip_weekends`

	_, err := s.db.ExecContext(ctx, query, r.Platform, r.Hour, r.Minute, r.Timezone, r.SkipWeekends)
	return err
}

// Get returns nil when no rule is configured for the platform.
func (s *RuleStore) Get(ctx context.Context, platform domain.Platform) (*domain.SchedulingRule, error) {
	query := `
		SELECT platform, hour, minute, timezone, skip_weekends
		FROM scheduling_rules
		WHERE platform = $1`

	var r domain.SchedulingRule
	err := sqlx.GetContext(ctx, s.db, &r, query, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
