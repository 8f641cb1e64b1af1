package adapters

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory()
	ownerID := id.ProfileID(uuid.New())
	tenantID := id.ProfileID(uuid.New())
	propertyID := id.PropertyID(uuid.New())
	leaseID := id.LeaseID(uuid.New())

	d.PutProfile(models.Profile{ID: ownerID, Nom: "Martin", Prenom: "Claire"})
	d.PutOwner(models.Owner{ProfileID: ownerID, Type: models.OwnerSociete, RaisonSociale: "SCI Lilas"})
	d.PutProperty(models.Property{ID: propertyID, OwnerID: ownerID})
	roster := []models.Signatory{{ProfileID: ownerID, Role: "proprietaire"}, {ProfileID: tenantID, Role: "locataire"}}
	d.PutLease(models.Lease{ID: leaseID, PropertyID: propertyID, Roster: roster})

	t.Run("roster is copied in and out", func(t *testing.T) {
		roster[0].Role = "changed"
		got, err := d.Signatories(ctx, leaseID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "proprietaire", got[0].Role)

		got[1].Role = "mutated"
		again, err := d.Signatories(ctx, leaseID)
		require.NoError(t, err)
		assert.Equal(t, "locataire", again[1].Role)
	})

	t.Run("owner carries its profile", func(t *testing.T) {
		owner, err := d.GetOwner(ctx, ownerID)
		require.NoError(t, err)
		require.NotNil(t, owner.Profile)
		assert.Equal(t, "Claire", owner.Profile.Prenom)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		_, err := d.GetLease(ctx, id.LeaseID(uuid.New()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = d.GetProfile(ctx, tenantID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = d.Signatories(ctx, id.LeaseID(uuid.New()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
