//go:build integration

package inspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"habitat/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	runStoreContract(t, func(t *testing.T) store {
		require.NoError(t, pg.TruncateTables(context.Background(), "inspection_media", "inspection_items", "inspection_signers", "inspections"))
		return NewPostgres(pg.DB)
	})
}
