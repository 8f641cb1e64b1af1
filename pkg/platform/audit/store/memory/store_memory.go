// Package memory keeps the audit trail in process memory, for local runs and
// tests.
package memory

import (
	"context"
	"sync"

	audit "habitat/pkg/platform/audit"
)

// Store keeps events in append order.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Metadata = cloneMetadata(event.Metadata)
	s.events = append(s.events, event)
	return nil
}

// ListByEntity scans the whole log; fine at test and dev volumes.
func (s *Store) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []audit.Event{}
	for _, e := range s.events {
		if e.EntityType == entityType && e.EntityID == entityID {
			e.Metadata = cloneMetadata(e.Metadata)
			out = append(out, e)
		}
	}
	return out, nil
}

// Len is the number of events stored across all entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
