package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	audit "habitat/pkg/platform/audit"
	"habitat/pkg/platform/audit/store/memory"
)

// flakyStore fails every other append.
type flakyStore struct {
	*memory.Store
	calls int
}

func (f *flakyStore) Append(ctx context.Context, e audit.Event) error {
	f.calls++
	if f.calls%2 == 0 {
		return errors.New("connection reset")
	}
	return f.Store.Append(ctx, e)
}

func TestWorkerKeepsGoingAfterStoreErrors(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	inbox := make(chan audit.Event, 4)
	for _, action := range []string{"a", "b", "c", "d"} {
		inbox <- audit.Event{Action: action, EntityType: "inspection", EntityID: "1"}
	}
	close(inbox)

	NewWorker(store, inbox, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(context.Background())

	assert.Equal(t, 4, store.calls)
	events, err := store.ListByEntity(context.Background(), "inspection", "1")
	assert.NoError(t, err)
	if assert.Len(t, events, 2) {
		assert.Equal(t, "a", events[0].Action)
		assert.Equal(t, "c", events[1].Action)
	}
}
