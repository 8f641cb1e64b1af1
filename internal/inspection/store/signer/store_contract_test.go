package signer

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
	InsertIfAbsent(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, bool, error)
	Find(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*models.SignerEntry, error)
	FindByToken(ctx context.Context, token string) (*models.SignerEntry, error)
	ListByInspection(ctx context.Context, inspectionID id.InspectionID) ([]*models.SignerEntry, error)
	MarkInvited(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID, token string, sentAt time.Time) (*models.SignerEntry, error)
	UpsertSignature(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, error)
}

type fixture struct {
	store         store
	newInspection func(t *testing.T) id.InspectionID
}

var storeNow = time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC)

func newEntry(t *testing.T, inspectionID id.InspectionID, role models.SignerRole, withToken bool) *models.SignerEntry {
	t.Helper()
	e := &models.SignerEntry{
		ID:              id.NewSignerID(),
		InspectionID:    inspectionID,
		SignerProfileID: id.ProfileID(uuid.New()),
		SignerRole:      role,
		CreatedAt:       storeNow,
		UpdatedAt:       storeNow,
	}
	if withToken {
		token, err := models.NewInvitationToken()
		require.NoError(t, err)
		e.InvitationToken = token
	}
	return e
}

// runStoreContract checks the behavior every signer store must share.
func runStoreContract(t *testing.T, setup func(t *testing.T) fixture) {
	ctx := context.Background()

	t.Run("insert is idempotent per inspection and profile", func(t *testing.T) {
		f := setup(t)
		inspectionID := f.newInspection(t)
		entry := newEntry(t, inspectionID, models.RoleTenant, true)

		stored, created, err := f.store.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, entry.InvitationToken, stored.InvitationToken)

		dup := *entry
		dup.ID = id.NewSignerID()
		dup.InvitationToken = "other"
		again, created, err := f.store.InsertIfAbsent(ctx, &dup)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, entry.InvitationToken, again.InvitationToken)

		byToken, err := f.store.FindByToken(ctx, entry.InvitationToken)
		require.NoError(t, err)
		assert.Equal(t, entry.SignerProfileID, byToken.SignerProfileID)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		f := setup(t)
		inspectionID := f.newInspection(t)
		first := newEntry(t, inspectionID, models.RoleOwner, true)
		_, _, err := f.store.InsertIfAbsent(ctx, first)
		require.NoError(t, err)

		second := newEntry(t, inspectionID, models.RoleTenant, false)
		second.InvitationToken = first.InvitationToken
		_, _, err = f.store.InsertIfAbsent(ctx, second)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("mark invited keeps an existing token", func(t *testing.T) {
		f := setup(t)
		inspectionID := f.newInspection(t)
		entry := newEntry(t, inspectionID, models.RoleTenant, true)
		_, _, err := f.store.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)

		fresh, err := models.NewInvitationToken()
		require.NoError(t, err)
		invited, err := f.store.MarkInvited(ctx, inspectionID, entry.SignerProfileID, fresh, storeNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, entry.InvitationToken, invited.InvitationToken)
		require.NotNil(t, invited.InvitationSentAt)
		assert.True(t, invited.InvitationSentAt.Equal(storeNow.Add(time.Hour)))

		untokened := newEntry(t, inspectionID, models.RoleOwner, false)
		_, _, err = f.store.InsertIfAbsent(ctx, untokened)
		require.NoError(t, err)
		invited, err = f.store.MarkInvited(ctx, inspectionID, untokened.SignerProfileID, fresh, storeNow)
		require.NoError(t, err)
		assert.Equal(t, fresh, invited.InvitationToken)

		_, err = f.store.MarkInvited(ctx, inspectionID, id.ProfileID(uuid.New()), fresh, storeNow)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("upsert signature updates in place", func(t *testing.T) {
		f := setup(t)
		inspectionID := f.newInspection(t)
		entry := newEntry(t, inspectionID, models.RoleTenant, true)
		_, _, err := f.store.InsertIfAbsent(ctx, entry)
		require.NoError(t, err)

		signed := *entry
		signed.InvitationToken = ""
		signed.RecordSignature("inspections/x/signatures/y.png", "203.0.113.7", "curl/8", storeNow)
		got, err := f.store.UpsertSignature(ctx, &signed)
		require.NoError(t, err)
		assert.True(t, got.IsSigned())
		assert.Equal(t, entry.InvitationToken, got.InvitationToken)

		list, err := f.store.ListByInspection(ctx, inspectionID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].IsSigned())
		assert.True(t, models.EvaluateCompletion(list).TenantSigned)
	})

	t.Run("upsert signature inserts a missing entry", func(t *testing.T) {
		f := setup(t)
		inspectionID := f.newInspection(t)
		entry := newEntry(t, inspectionID, models.RoleOwner, false)
		entry.RecordSignature("inspections/x/signatures/z.png", "", "", storeNow)

		got, err := f.store.UpsertSignature(ctx, entry)
		require.NoError(t, err)
		assert.True(t, got.IsSigned())

		found, err := f.store.Find(ctx, inspectionID, entry.SignerProfileID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, found.SignerRole)
	})

	t.Run("lookups of unknown rows", func(t *testing.T) {
		f := setup(t)
		_, err := f.store.Find(ctx, f.newInspection(t), id.ProfileID(uuid.New()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = f.store.FindByToken(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
