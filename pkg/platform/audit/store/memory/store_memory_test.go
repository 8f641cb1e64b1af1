package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "habitat/pkg/platform/audit"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	meta := map[string]string{"type": "entree"}
	require.NoError(t, s.Append(ctx, audit.Event{Action: "inspection_created", EntityType: "inspection", EntityID: "a", Metadata: meta}))
	require.NoError(t, s.Append(ctx, audit.Event{Action: "inspection_created", EntityType: "inspection", EntityID: "b"}))
	require.NoError(t, s.Append(ctx, audit.Event{Action: "inspection_signed", EntityType: "inspection", EntityID: "a"}))
	meta["type"] = "sortie"

	events, err := s.ListByEntity(ctx, "inspection", "a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "inspection_signed", events[1].Action)
	assert.Equal(t, "entree", events[0].Metadata["type"], "stored metadata is a copy")
	assert.Equal(t, 3, s.Len())

	none, err := s.ListByEntity(ctx, "inspection", "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
