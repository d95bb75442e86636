// Package sqlstore persists the analytics outbox with bun.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-appshell/analytics"
	"github.com/goliatone/go-appshell/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusDelivered = "delivered"
	outboxStatusFailed    = "failed"
)

// OutboxStore is an analytics.Outbox backed by the appshell_analytics_outbox
// table. Delivered rows are kept with status delivered, dead lettered rows
// with status failed.
type OutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*analyticsOutboxRecord]
	now  func() time.Time
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*analyticsOutboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo, now: time.Now}, nil
}

// NewOutboxStoreFromPersistence accepts a *bun.DB or anything exposing DB() *bun.DB,
// such as a go-persistence-bun client.
func NewOutboxStoreFromPersistence(client any) (*OutboxStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewOutboxStore(db)
}

// Enqueue stores event once; enqueueing an event id that already exists is a no-op.
func (s *OutboxStore) Enqueue(ctx context.Context, event analytics.Event) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: outbox event id is required")
	}
	if strings.TrimSpace(string(event.Kind)) == "" {
		return fmt.Errorf("sqlstore: outbox event kind is required")
	}

	_, total, err := s.repo.List(ctx,
		repository.SelectBy("event_id", "=", eventID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	now := s.now().UTC()
	occurredAt := event.Timestamp.UTC()
	if event.Timestamp.IsZero() {
		occurredAt = now
	}
	record := &analyticsOutboxRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		Kind:        string(event.Kind),
		Name:        strings.TrimSpace(event.Name),
		Category:    strings.TrimSpace(event.Category),
		UserID:      strings.TrimSpace(event.UserID),
		AnonymousID: strings.TrimSpace(event.AnonymousID),
		Properties:  core.CloneFields(event.Properties),
		Status:      outboxStatusPending,
		Attempts:    event.Attempts,
		LastError:   strings.TrimSpace(event.LastError),
		OccurredAt:  occurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err = s.repo.Create(ctx, record)
	return err
}

func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]analytics.Event, error) {
	return s.listByStatus(ctx, outboxStatusPending, limit)
}

func (s *OutboxStore) listByStatus(ctx context.Context, status string, limit int) ([]analytics.Event, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("status", "=", status),
		repository.OrderBy("occurred_at ASC"),
		repository.OrderBy("event_id ASC"),
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	events := make([]analytics.Event, 0, len(records))
	for _, record := range records {
		events = append(events, outboxRecordToEvent(record))
	}
	return events, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*analyticsOutboxRecord)(nil)).
		Set("status = ?", outboxStatusDelivered).
		Set("last_error = ?", "").
		Set("updated_at = ?", s.now().UTC()).
		Where("event_id = ?", id).
		Exec(ctx)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*analyticsOutboxRecord)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now().UTC()).
		Where("event_id = ?", id).
		Where("status = ?", outboxStatusPending).
		Exec(ctx)
	return err
}

func (s *OutboxStore) MarkDeadLettered(ctx context.Context, id string, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	now := s.now().UTC()
	_, err := s.db.NewUpdate().
		Model((*analyticsOutboxRecord)(nil)).
		Set("status = ?", outboxStatusFailed).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Set("failed_at = ?", now).
		Set("updated_at = ?", now).
		Where("event_id = ?", id).
		Where("status = ?", outboxStatusPending).
		Exec(ctx)
	return err
}

// DeadLettered lists rows parked with status failed, oldest first.
func (s *OutboxStore) DeadLettered(ctx context.Context, limit int) ([]analytics.Event, error) {
	return s.listByStatus(ctx, outboxStatusFailed, limit)
}

func outboxRecordToEvent(record *analyticsOutboxRecord) analytics.Event {
	if record == nil {
		return analytics.Event{}
	}
	return analytics.Event{
		ID:          record.EventID,
		Kind:        analytics.EventKind(record.Kind),
		Name:        record.Name,
		Category:    record.Category,
		UserID:      record.UserID,
		AnonymousID: record.AnonymousID,
		Properties:  core.CloneFields(record.Properties),
		Timestamp:   record.OccurredAt,
		Attempts:    record.Attempts,
		LastError:   record.LastError,
	}
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ analytics.Outbox = (*OutboxStore)(nil)
