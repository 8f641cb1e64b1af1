package audit

import (
	"context"
	"time"

	id "habitat/pkg/domain"
)

// Event is one audit trail entry. It stays transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	Timestamp  time.Time
	ActorID    id.ProfileID
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]string
	RequestID  string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
}

// Emitter is what domain services depend on. Emission is best-effort from the
// caller's point of view.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
