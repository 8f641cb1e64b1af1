package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

func TestParseInspectionType(t *testing.T) {
	got, err := ParseInspectionType(" Entree ")
	require.NoError(t, err)
	assert.Equal(t, TypeEntree, got)

	_, err = ParseInspectionType("annual")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusSigned))
	assert.True(t, StatusCompleted.CanTransitionTo(StatusSigned))
	assert.False(t, StatusSigned.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusInProgress.CanTransitionTo(StatusDraft))
	assert.False(t, StatusSigned.CanTransitionTo(StatusSigned))
	assert.False(t, Status("archived").CanTransitionTo(StatusSigned))
}

func TestInspectionAdvance(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insp, err := NewInspection(id.NewInspectionID(), id.LeaseID(uuid.New()), TypeEntree, now,
		" notes ", []KeySet{{Label: "front door", Quantity: 2}, {Label: "  "}}, id.ProfileID(uuid.New()), now)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, insp.Status)
	assert.Equal(t, "notes", insp.GeneralNotes)
	assert.Len(t, insp.Keys, 1)

	later := now.Add(time.Minute)
	assert.True(t, insp.Advance(StatusSigned, later))
	assert.Equal(t, later, *insp.SignedAt)
	assert.False(t, insp.Advance(StatusInProgress, later), "never regresses")
	assert.Equal(t, StatusSigned, insp.Status)
}

func TestFlattenSections(t *testing.T) {
	inspID := id.NewInspectionID()
	now := time.Now()

	items, err := FlattenSections(inspID, []SectionInput{
		{RoomName: "Salon", Items: []ItemInput{{Name: "Mur"}, {Name: "Sol"}}},
		{RoomName: "Cuisine", Items: []ItemInput{{Name: "Évier", Condition: "bon"}}},
	}, 5, now, id.NewItemID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 5, items[0].Position)
	assert.Equal(t, 7, items[2].Position)
	assert.Equal(t, "Cuisine", items[2].RoomName)

	_, err = FlattenSections(inspID, []SectionInput{{RoomName: "Salon"}}, 0, now, id.NewItemID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "empty flattened set")

	_, err = FlattenSections(inspID, nil, 0, now, id.NewItemID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = FlattenSections(inspID, []SectionInput{{RoomName: "Salon", Items: []ItemInput{{Name: " "}}}}, 0, now, id.NewItemID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
