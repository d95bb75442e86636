package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type analyticsOutboxRecord struct {
	bun.BaseModel `bun:"table:appshell_analytics_outbox,alias:aao"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id,notnull"`
	Kind        string         `bun:"kind,notnull"`
	Name        string         `bun:"name,notnull"`
	Category    string         `bun:"category,notnull"`
	UserID      string         `bun:"user_id,notnull"`
	AnonymousID string         `bun:"anonymous_id,notnull"`
	Properties  map[string]any `bun:"properties,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	LastError   string         `bun:"last_error,notnull"`
	OccurredAt  time.Time      `bun:"occurred_at,notnull"`
	FailedAt    *time.Time     `bun:"failed_at,nullzero"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
