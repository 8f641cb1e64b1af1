package inspection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
)

type store interface {
	CreateOrGetActive(ctx context.Context, candidate *models.Inspection) (*models.Inspection, bool, error)
	FindByID(ctx context.Context, inspectionID id.InspectionID) (*models.Inspection, error)
	AdvanceStatus(ctx context.Context, inspectionID id.InspectionID, next models.Status, now time.Time) (bool, error)
	NextItemPosition(ctx context.Context, inspectionID id.InspectionID) (int, error)
	AppendItems(ctx context.Context, items []*models.Item) error
	ListItems(ctx context.Context, inspectionID id.InspectionID) ([]*models.Item, error)
	FindItem(ctx context.Context, itemID id.ItemID) (*models.Item, error)
	AddMedia(ctx context.Context, media *models.Media) error
	ListMedia(ctx context.Context, inspectionID id.InspectionID) ([]*models.Media, error)
}

var storeNow = time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC)

func newCandidate(t *testing.T, leaseID id.LeaseID, kind models.InspectionType) *models.Inspection {
	t.Helper()
	insp, err := models.NewInspection(id.NewInspectionID(), leaseID, kind, storeNow, "", nil, id.ProfileID(uuid.New()), storeNow)
	require.NoError(t, err)
	return insp
}

// runStoreContract checks the behavior every inspection store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store) {
	ctx := context.Background()

	t.Run("one active inspection per lease and type", func(t *testing.T) {
		s := newStore(t)
		leaseID := id.LeaseID(uuid.New())

		first, created, err := s.CreateOrGetActive(ctx, newCandidate(t, leaseID, models.TypeEntree))
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := s.CreateOrGetActive(ctx, newCandidate(t, leaseID, models.TypeEntree))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)

		exit, created, err := s.CreateOrGetActive(ctx, newCandidate(t, leaseID, models.TypeSortie))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, exit.ID)
	})

	t.Run("a completed inspection frees the slot", func(t *testing.T) {
		s := newStore(t)
		leaseID := id.LeaseID(uuid.New())
		first, _, err := s.CreateOrGetActive(ctx, newCandidate(t, leaseID, models.TypeEntree))
		require.NoError(t, err)

		moved, err := s.AdvanceStatus(ctx, first.ID, models.StatusCompleted, storeNow)
		require.NoError(t, err)
		require.True(t, moved)

		second, created, err := s.CreateOrGetActive(ctx, newCandidate(t, leaseID, models.TypeEntree))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("status only moves forward", func(t *testing.T) {
		s := newStore(t)
		insp, _, err := s.CreateOrGetActive(ctx, newCandidate(t, id.LeaseID(uuid.New()), models.TypeEntree))
		require.NoError(t, err)

		moved, err := s.AdvanceStatus(ctx, insp.ID, models.StatusSigned, storeNow)
		require.NoError(t, err)
		assert.True(t, moved)

		moved, err = s.AdvanceStatus(ctx, insp.ID, models.StatusSigned, storeNow.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, moved)

		moved, err = s.AdvanceStatus(ctx, insp.ID, models.StatusInProgress, storeNow)
		require.NoError(t, err)
		assert.False(t, moved)

		got, err := s.FindByID(ctx, insp.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSigned, got.Status)
		require.NotNil(t, got.SignedAt)
		assert.True(t, got.SignedAt.Equal(storeNow))
	})

	t.Run("unknown inspection", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByID(ctx, id.NewInspectionID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.AdvanceStatus(ctx, id.NewInspectionID(), models.StatusCompleted, storeNow)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("items keep their positions", func(t *testing.T) {
		s := newStore(t)
		insp, _, err := s.CreateOrGetActive(ctx, newCandidate(t, id.LeaseID(uuid.New()), models.TypeEntree))
		require.NoError(t, err)

		pos, err := s.NextItemPosition(ctx, insp.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, pos)

		sections := []models.SectionInput{
			{RoomName: "Salon", Items: []models.ItemInput{{Name: "Mur"}, {Name: "Sol"}}},
			{RoomName: "Cuisine", Items: []models.ItemInput{{Name: "Evier"}}},
		}
		items, err := models.FlattenSections(insp.ID, sections, pos, storeNow, id.NewItemID)
		require.NoError(t, err)
		require.NoError(t, s.AppendItems(ctx, items))

		pos, err = s.NextItemPosition(ctx, insp.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, pos)

		listed, err := s.ListItems(ctx, insp.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, "Mur", listed[0].ItemName)
		assert.Equal(t, "Evier", listed[2].ItemName)

		found, err := s.FindItem(ctx, listed[1].ID)
		require.NoError(t, err)
		assert.Equal(t, insp.ID, found.InspectionID)

		_, err = s.FindItem(ctx, id.NewItemID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("media is listed per inspection", func(t *testing.T) {
		s := newStore(t)
		insp, _, err := s.CreateOrGetActive(ctx, newCandidate(t, id.LeaseID(uuid.New()), models.TypeEntree))
		require.NoError(t, err)

		section := "Salon"
		require.NoError(t, s.AddMedia(ctx, &models.Media{
			ID:           id.NewMediaID(),
			InspectionID: insp.ID,
			StoragePath:  "inspections/x/media/a.jpg",
			MediaType:    models.MediaPhoto,
			Section:      &section,
			TakenAt:      storeNow,
			CreatedAt:    storeNow,
		}))

		media, err := s.ListMedia(ctx, insp.ID)
		require.NoError(t, err)
		require.Len(t, media, 1)
		require.NotNil(t, media[0].Section)
		assert.Equal(t, "Salon", *media[0].Section)

		err = s.AddMedia(ctx, &models.Media{ID: id.NewMediaID(), InspectionID: id.NewInspectionID(), StoragePath: "p", MediaType: models.MediaPhoto, TakenAt: storeNow})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
