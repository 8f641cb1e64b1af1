package models

import (
	"strings"
	"time"

	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

// Item is one observed element of a room. Items are append-only.
type Item struct {
	ID           id.ItemID
	InspectionID id.InspectionID
	RoomName     string
	ItemName     string
	Condition    string
	Notes        string
	// Position orders items inside an inspection; it grows with each append.
	Position  int
	CreatedAt time.Time
}

// SectionInput is a room with the items observed in it.
type SectionInput struct {
	RoomName string
	Items    []ItemInput
}

// ItemInput describes one item of a section.
type ItemInput struct {
	Name      string
	Condition string
	Notes     string
}

// FlattenSections turns sections into item rows, numbering positions from
// startPosition. Returns CodeValidation when a name is blank or when nothing
// is left to insert.
func FlattenSections(
	inspectionID id.InspectionID,
	sections []SectionInput,
	startPosition int,
	now time.Time,
	newID func() id.ItemID,
) ([]*Item, error) {
	var items []*Item
	position := startPosition
	for _, section := range sections {
		room := strings.TrimSpace(section.RoomName)
		if room == "" && len(section.Items) > 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "room name is required")
		}
		for _, in := range section.Items {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				return nil, dErrors.New(dErrors.CodeValidation, "item name is required in room "+room)
			}
			items = append(items, &Item{
				ID:           newID(),
				InspectionID: inspectionID,
				RoomName:     room,
				ItemName:     name,
				Condition:    strings.TrimSpace(in.Condition),
				Notes:        strings.TrimSpace(in.Notes),
				Position:     position,
				CreatedAt:    now,
			})
			position++
		}
	}
	if len(items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "sections contain no items")
	}
	return items, nil
}
