package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "habitat/pkg/domain"
)

func TestAccessors(t *testing.T) {
	empty := context.Background()
	assert.True(t, ActorID(empty).IsNil())
	assert.Empty(t, ClientIP(empty))
	assert.Empty(t, RequestID(empty))
	_, pinned := Time(empty)
	assert.False(t, pinned)

	actor := id.ProfileID(uuid.New())
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	ctx := WithActorID(empty, actor)
	ctx = WithClientMetadata(ctx, "198.51.100.4", "Mozilla/5.0")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTime(ctx, at)

	assert.Equal(t, actor, ActorID(ctx))
	assert.Equal(t, "198.51.100.4", ClientIP(ctx))
	assert.Equal(t, "Mozilla/5.0", UserAgent(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, at, Now(ctx))
}
