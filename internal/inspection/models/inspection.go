package models

import (
	"strings"
	"time"

	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

// InspectionType distinguishes move-in from move-out inspections.
type InspectionType string

const (
	TypeEntree InspectionType = "entree"
	TypeSortie InspectionType = "sortie"
)

// ParseInspectionType validates external input. Only entree and sortie exist.
func ParseInspectionType(s string) (InspectionType, error) {
	t := InspectionType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeEntree, TypeSortie:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "inspection type must be entree or sortie")
	}
}

// Status is the coarse lifecycle of an inspection record.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSigned     Status = "signed"
)

var statusRank = map[Status]int{
	StatusDraft:      0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusSigned:     3,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsActive reports whether the inspection still blocks a new one for the same
// lease and type.
func (s Status) IsActive() bool {
	return s == StatusDraft || s == StatusInProgress
}

// IsComplete reports whether the inspection content is final.
func (s Status) IsComplete() bool {
	return s == StatusCompleted || s == StatusSigned
}

// CanTransitionTo enforces forward-only movement. Status never regresses.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// KeySet records keys handed over during the inspection.
type KeySet struct {
	Label    string `json:"label"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// Inspection is the aggregate root of the EDL lifecycle.
//
// Invariants:
//   - At most one active (draft/in_progress) inspection per (LeaseID, Type)
//   - Status only moves forward (see Status.CanTransitionTo)
//   - CreatedBy and CreatedAt are immutable after construction
type Inspection struct {
	ID            id.InspectionID
	LeaseID       id.LeaseID
	Type          InspectionType
	Status        Status
	ScheduledDate time.Time
	GeneralNotes  string
	Keys          []KeySet
	CreatedBy     id.ProfileID
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SignedAt      *time.Time
}

// NewInspection builds a draft inspection.
func NewInspection(
	inspectionID id.InspectionID,
	leaseID id.LeaseID,
	inspectionType InspectionType,
	scheduledDate time.Time,
	notes string,
	keys []KeySet,
	createdBy id.ProfileID,
	now time.Time,
) (*Inspection, error) {
	if leaseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lease id is required")
	}
	if createdBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator is required")
	}
	if inspectionType != TypeEntree && inspectionType != TypeSortie {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown inspection type")
	}
	cleanKeys := make([]KeySet, 0, len(keys))
	for _, k := range keys {
		k.Label = strings.TrimSpace(k.Label)
		if k.Label == "" {
			continue
		}
		if k.Quantity < 0 {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "key quantity cannot be negative")
		}
		cleanKeys = append(cleanKeys, k)
	}
	return &Inspection{
		ID:            inspectionID,
		LeaseID:       leaseID,
		Type:          inspectionType,
		Status:        StatusDraft,
		ScheduledDate: scheduledDate,
		GeneralNotes:  strings.TrimSpace(notes),
		Keys:          cleanKeys,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Advance moves the inspection to next when that is a forward move.
// It reports whether anything changed.
func (i *Inspection) Advance(next Status, now time.Time) bool {
	if !i.Status.CanTransitionTo(next) {
		return false
	}
	i.Status = next
	i.UpdatedAt = now
	if next == StatusSigned {
		signedAt := now
		i.SignedAt = &signedAt
	}
	return true
}
