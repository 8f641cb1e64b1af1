package domain

import (
	"github.com/google/uuid"

	dErrors "habitat/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so an inspection ID can never be passed
// where a lease or profile ID is expected.
//
// Usage: construct via Parse* at trust boundaries (handlers, adapters, token
// resolution). Direct conversion from uuid.UUID is reserved for stores and
// generators that already hold a trusted value.
type (
	InspectionID uuid.UUID
	LeaseID      uuid.UUID
	ProfileID    uuid.UUID
	PropertyID   uuid.UUID
	ItemID       uuid.UUID
	MediaID      uuid.UUID
	SignerID     uuid.UUID
)

func (i InspectionID) String() string { return uuid.UUID(i).String() }
func (i InspectionID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i LeaseID) String() string { return uuid.UUID(i).String() }
func (i LeaseID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i ProfileID) String() string { return uuid.UUID(i).String() }
func (i ProfileID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i PropertyID) String() string { return uuid.UUID(i).String() }
func (i PropertyID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i ItemID) String() string { return uuid.UUID(i).String() }
func (i ItemID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i MediaID) String() string { return uuid.UUID(i).String() }
func (i MediaID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

func (i SignerID) String() string { return uuid.UUID(i).String() }
func (i SignerID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }

// NewInspectionID and friends mint random identifiers.
func NewInspectionID() InspectionID { return InspectionID(uuid.New()) }
func NewItemID() ItemID             { return ItemID(uuid.New()) }
func NewMediaID() MediaID           { return MediaID(uuid.New()) }
func NewSignerID() SignerID         { return SignerID(uuid.New()) }

func ParseInspectionID(s string) (InspectionID, error) {
	u, err := parseUUID(s, "inspection")
	return InspectionID(u), err
}

func ParseLeaseID(s string) (LeaseID, error) {
	u, err := parseUUID(s, "lease")
	return LeaseID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile")
	return ProfileID(u), err
}

func ParsePropertyID(s string) (PropertyID, error) {
	u, err := parseUUID(s, "property")
	return PropertyID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item")
	return ItemID(u), err
}

func ParseMediaID(s string) (MediaID, error) {
	u, err := parseUUID(s, "media")
	return MediaID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}
