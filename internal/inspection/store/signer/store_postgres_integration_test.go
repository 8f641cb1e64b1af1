//go:build integration

package signer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"habitat/internal/inspection/models"
	inspectionstore "habitat/internal/inspection/store/inspection"
	id "habitat/pkg/domain"
	"habitat/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	inspections := inspectionstore.NewPostgres(pg.DB)

	runStoreContract(t, func(t *testing.T) fixture {
		require.NoError(t, pg.TruncateTables(context.Background(), "inspection_signers", "inspection_media", "inspection_items", "inspections"))
		return fixture{
			store: NewPostgres(pg.DB),
			newInspection: func(t *testing.T) id.InspectionID {
				now := time.Now().UTC()
				candidate, err := models.NewInspection(id.NewInspectionID(), id.LeaseID(uuid.New()),
					models.TypeEntree, now, "", nil, id.ProfileID(uuid.New()), now)
				require.NoError(t, err)
				insp, _, err := inspections.CreateOrGetActive(context.Background(), candidate)
				require.NoError(t, err)
				return insp.ID
			},
		}
	})
}
