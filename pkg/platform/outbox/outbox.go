// Package outbox records domain events next to the state change that caused
// them and relays them to the broker later, at least once.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending or published event.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Store persists outbox entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Sink turns typed domain events into outbox entries for one aggregate type.
type Sink struct {
	store         Store
	aggregateType string
	now           func() time.Time
}

func NewSink(store Store, aggregateType string) *Sink {
	return &Sink{store: store, aggregateType: aggregateType, now: time.Now}
}

// Append serializes payload as JSON and records it under aggregateID.
func (s *Sink) Append(ctx context.Context, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return s.store.Append(ctx, Entry{
		ID:            uuid.New(),
		AggregateType: s.aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     s.now(),
	})
}
