package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "habitat/pkg/domain"
	audit "habitat/pkg/platform/audit"
	"habitat/pkg/platform/audit/store/memory"
)

type PublisherSuite struct {
	suite.Suite
	store      *memory.Store
	ctx        context.Context
	inspection string
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.New()
	s.ctx = context.Background()
	s.inspection = uuid.NewString()
}

func (s *PublisherSuite) event(action string) audit.Event {
	return audit.Event{
		ActorID:    id.ProfileID(uuid.New()),
		Action:     action,
		EntityType: "inspection",
		EntityID:   s.inspection,
	}
}

func (s *PublisherSuite) TestSyncWritesThrough() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	s.Require().NoError(pub.Emit(s.ctx, s.event("inspection_created")))

	events, err := pub.List(s.ctx, "inspection", s.inspection)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("inspection_created", events[0].Action)
}

func (s *PublisherSuite) TestStampsMissingTimestamps() {
	fixed := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	pub := NewPublisher(s.store, WithClock(func() time.Time { return fixed }))

	explicit := s.event("signature_captured")
	explicit.Timestamp = fixed.Add(-time.Hour)
	s.Require().NoError(pub.Emit(s.ctx, s.event("inspection_created")))
	s.Require().NoError(pub.Emit(s.ctx, explicit))

	events, err := pub.List(s.ctx, "inspection", s.inspection)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(fixed, events[0].Timestamp)
	s.Equal(explicit.Timestamp, events[1].Timestamp)
}

func (s *PublisherSuite) TestAsyncCloseDrainsTheBuffer() {
	pub := NewPublisher(s.store, WithAsyncBuffer(64))
	for range 20 {
		s.Require().NoError(pub.Emit(s.ctx, s.event("signature_captured")))
	}
	pub.Close()

	s.Equal(20, s.store.Len())
}

func (s *PublisherSuite) TestAsyncAfterClose() {
	pub := NewPublisher(s.store, WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	s.ErrorIs(pub.Emit(s.ctx, s.event("late")), ErrBufferFull)
}

func (s *PublisherSuite) TestAsyncRejectsCancelledContext() {
	pub := NewPublisher(s.store, WithAsyncBuffer(1))
	defer pub.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	s.ErrorIs(pub.Emit(ctx, s.event("x")), context.Canceled)
}

func (s *PublisherSuite) TestAsyncBurstNeverBlocks() {
	pub := NewPublisher(s.store, WithAsyncBuffer(1))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pub.Emit(s.ctx, s.event("burst")) == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	pub.Close()

	s.GreaterOrEqual(accepted, 1)
	s.Equal(accepted, s.store.Len(), "every accepted event is stored, dropped ones are not")
}
