package signer

import (
	"context"
	"sort"
	"sync"
	"time"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
)

type signerKey struct {
	inspectionID id.InspectionID
	profileID    id.ProfileID
}

// InMemoryStore enforces the same uniqueness as the postgres schema:
// one entry per (inspection, profile) and one entry per token.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[signerKey]*models.SignerEntry
	tokens  map[string]signerKey
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[signerKey]*models.SignerEntry),
		tokens:  make(map[string]signerKey),
	}
}

func copyEntry(e *models.SignerEntry) *models.SignerEntry {
	c := *e
	if e.InvitationSentAt != nil {
		t := *e.InvitationSentAt
		c.InvitationSentAt = &t
	}
	if e.SignedAt != nil {
		t := *e.SignedAt
		c.SignedAt = &t
	}
	return &c
}

// InsertIfAbsent stores entry unless one exists for the same inspection and
// profile. The stored entry is returned either way.
func (s *InMemoryStore) InsertIfAbsent(_ context.Context, entry *models.SignerEntry) (*models.SignerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signerKey{entry.InspectionID, entry.SignerProfileID}
	if existing, ok := s.entries[key]; ok {
		return copyEntry(existing), false, nil
	}
	if entry.InvitationToken != "" {
		if _, taken := s.tokens[entry.InvitationToken]; taken {
			return nil, false, sentinel.ErrConflict
		}
		s.tokens[entry.InvitationToken] = key
	}
	s.entries[key] = copyEntry(entry)
	return copyEntry(entry), true, nil
}

func (s *InMemoryStore) Find(_ context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*models.SignerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[signerKey{inspectionID, profileID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.SignerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.tokens[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(s.entries[key]), nil
}

func (s *InMemoryStore) ListByInspection(_ context.Context, inspectionID id.InspectionID) ([]*models.SignerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SignerEntry
	for key, e := range s.entries {
		if key.inspectionID == inspectionID {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SignerProfileID.String() < out[j].SignerProfileID.String()
	})
	return out, nil
}

// MarkInvited keeps an existing token and only fills it when empty.
func (s *InMemoryStore) MarkInvited(_ context.Context, inspectionID id.InspectionID, profileID id.ProfileID, token string, sentAt time.Time) (*models.SignerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signerKey{inspectionID, profileID}
	e, ok := s.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if e.InvitationToken == "" {
		if _, taken := s.tokens[token]; taken {
			return nil, sentinel.ErrConflict
		}
		e.InvitationToken = token
		s.tokens[token] = key
	}
	sent := sentAt
	e.InvitationSentAt = &sent
	e.UpdatedAt = sentAt
	return copyEntry(e), nil
}

// UpsertSignature updates the signature fields of an existing entry or
// inserts entry as given. Token and role of an existing entry are kept.
func (s *InMemoryStore) UpsertSignature(_ context.Context, entry *models.SignerEntry) (*models.SignerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signerKey{entry.InspectionID, entry.SignerProfileID}
	if existing, ok := s.entries[key]; ok {
		existing.RecordSignature(entry.SignatureImagePath, entry.IPAddress, entry.UserAgent, *entry.SignedAt)
		return copyEntry(existing), nil
	}
	if entry.InvitationToken != "" {
		if _, taken := s.tokens[entry.InvitationToken]; taken {
			return nil, sentinel.ErrConflict
		}
		s.tokens[entry.InvitationToken] = key
	}
	s.entries[key] = copyEntry(entry)
	return copyEntry(entry), nil
}
