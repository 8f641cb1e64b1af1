package inspection

import (
	"context"
	"sort"
	"sync"
	"time"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
)

type activeKey struct {
	leaseID id.LeaseID
	kind    models.InspectionType
}

// InMemoryStore keeps inspections, items and media in process.
type InMemoryStore struct {
	mu          sync.RWMutex
	inspections map[id.InspectionID]*models.Inspection
	active      map[activeKey]id.InspectionID
	items       map[id.InspectionID][]*models.Item
	media       map[id.InspectionID][]*models.Media
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		inspections: make(map[id.InspectionID]*models.Inspection),
		active:      make(map[activeKey]id.InspectionID),
		items:       make(map[id.InspectionID][]*models.Item),
		media:       make(map[id.InspectionID][]*models.Media),
	}
}

func copyInspection(i *models.Inspection) *models.Inspection {
	c := *i
	c.Keys = append([]models.KeySet(nil), i.Keys...)
	if i.SignedAt != nil {
		t := *i.SignedAt
		c.SignedAt = &t
	}
	return &c
}

// CreateOrGetActive inserts candidate unless an active inspection already
// exists for its lease and type, in which case that one is returned.
func (s *InMemoryStore) CreateOrGetActive(_ context.Context, candidate *models.Inspection) (*models.Inspection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := activeKey{candidate.LeaseID, candidate.Type}
	if existingID, ok := s.active[key]; ok {
		if existing, ok := s.inspections[existingID]; ok && existing.Status.IsActive() {
			return copyInspection(existing), false, nil
		}
		delete(s.active, key)
	}
	if _, ok := s.inspections[candidate.ID]; ok {
		return nil, false, sentinel.ErrConflict
	}
	s.inspections[candidate.ID] = copyInspection(candidate)
	s.active[key] = candidate.ID
	return copyInspection(candidate), true, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, inspectionID id.InspectionID) (*models.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	insp, ok := s.inspections[inspectionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyInspection(insp), nil
}

// AdvanceStatus moves the inspection to next only if that is a forward move.
// It reports whether this call performed the transition.
func (s *InMemoryStore) AdvanceStatus(_ context.Context, inspectionID id.InspectionID, next models.Status, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.inspections[inspectionID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if !insp.Advance(next, now) {
		return false, nil
	}
	if !insp.Status.IsActive() {
		key := activeKey{insp.LeaseID, insp.Type}
		if s.active[key] == insp.ID {
			delete(s.active, key)
		}
	}
	return true, nil
}

// NextItemPosition returns the position the next appended item should take.
func (s *InMemoryStore) NextItemPosition(_ context.Context, inspectionID id.InspectionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.items[inspectionID]
	if len(items) == 0 {
		return 0, nil
	}
	return items[len(items)-1].Position + 1, nil
}

func (s *InMemoryStore) AppendItems(_ context.Context, items []*models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, ok := s.inspections[item.InspectionID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, item := range items {
		c := *item
		s.items[item.InspectionID] = append(s.items[item.InspectionID], &c)
	}
	return nil
}

func (s *InMemoryStore) ListItems(_ context.Context, inspectionID id.InspectionID) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Item, 0, len(s.items[inspectionID]))
	for _, item := range s.items[inspectionID] {
		c := *item
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *InMemoryStore) FindItem(_ context.Context, itemID id.ItemID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, items := range s.items {
		for _, item := range items {
			if item.ID == itemID {
				c := *item
				return &c, nil
			}
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) AddMedia(_ context.Context, media *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inspections[media.InspectionID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *media
	s.media[media.InspectionID] = append(s.media[media.InspectionID], &c)
	return nil
}

func (s *InMemoryStore) ListMedia(_ context.Context, inspectionID id.InspectionID) ([]*models.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Media, 0, len(s.media[inspectionID]))
	for _, m := range s.media[inspectionID] {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}
