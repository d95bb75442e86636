package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-appshell/core"
)

type EventKind string

const (
	KindTrackingLog       EventKind = "tracking_log"
	KindTrack             EventKind = "track"
	KindPage              EventKind = "page"
	KindIdentify          EventKind = "identify"
	KindIdentifyAnonymous EventKind = "identify_anonymous"
)

// Event is one analytics call as it is delivered and, when delivery is
// deferred, stored in the outbox.
type Event struct {
	ID          string         `json:"id"`
	Kind        EventKind      `json:"type"`
	Name        string         `json:"name,omitempty"`
	Category    string         `json:"category,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	AnonymousID string         `json:"anonymous_id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Attempts    int            `json:"-"`
	LastError   string         `json:"-"`
}

func (e Event) clone() Event {
	e.Properties = core.CloneFields(e.Properties)
	return e
}

// Outbox stores events that could not be delivered right away.
type Outbox interface {
	Enqueue(ctx context.Context, event Event) error
	// Pending returns undelivered events, oldest first. Dead lettered events
	// are never returned.
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id string) error
	// MarkFailed counts a failed attempt and keeps the event pending.
	MarkFailed(ctx context.Context, id string, cause error) error
	// MarkDeadLettered counts a final failed attempt and parks the event.
	MarkDeadLettered(ctx context.Context, id string, cause error) error
}

// MemoryOutbox is the process-local Outbox.
type MemoryOutbox struct {
	mu     sync.Mutex
	events map[string]Event
	dead   map[string]Event
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{events: map[string]Event{}, dead: map[string]Event{}}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, event Event) error {
	if event.ID == "" {
		return core.BadInputError("analytics: outbox event id is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.events[event.ID]; exists {
		return nil
	}
	if _, exists := o.dead[event.ID]; exists {
		return nil
	}
	o.events[event.ID] = event.clone()
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, 0, len(o.events))
	for _, event := range o.events {
		out = append(out, event.clone())
	}
	sortEvents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *MemoryOutbox) MarkDelivered(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.events, id)
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id string, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	event, ok := o.events[id]
	if !ok {
		return nil
	}
	event.Attempts++
	if cause != nil {
		event.LastError = cause.Error()
	}
	o.events[id] = event
	return nil
}

func (o *MemoryOutbox) MarkDeadLettered(_ context.Context, id string, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	event, ok := o.events[id]
	if !ok {
		return nil
	}
	event.Attempts++
	if cause != nil {
		event.LastError = cause.Error()
	}
	delete(o.events, id)
	o.dead[id] = event
	return nil
}

// DeadLettered returns the parked events, oldest first.
func (o *MemoryOutbox) DeadLettered() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, 0, len(o.dead))
	for _, event := range o.dead {
		out = append(out, event.clone())
	}
	sortEvents(out)
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].ID < events[j].ID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// Len reports how many events are waiting.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

var _ Outbox = (*MemoryOutbox)(nil)
