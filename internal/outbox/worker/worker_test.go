package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	conventionmodels "immersion/internal/convention/models"
	conventionstore "immersion/internal/convention/store"
	"immersion/internal/outbox/bus"
	"immersion/internal/outbox/models"
	"immersion/internal/outbox/quarantine"
	"immersion/internal/outbox/store"
	"immersion/pkg/domain"
	"immersion/pkg/platform/clock"
)

var baseTime = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)

type WorkerSuite struct {
	suite.Suite
	ctx         context.Context
	outbox      *store.InMemoryStore
	conventions *conventionstore.InMemoryStore
	dispatcher  *bus.Dispatcher
	quarantine  *quarantine.Manager
	worker      *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = store.NewInMemory()
	s.conventions = conventionstore.NewInMemory()
	s.dispatcher = bus.New(s.outbox, bus.WithClock(clock.NewFixed(baseTime)))
	s.quarantine = quarantine.New(s.outbox)
	s.worker = New(s.outbox, s.dispatcher, s.conventions, s.quarantine, WithConcurrency(3))

	s.Require().NoError(s.conventions.Insert(s.ctx, conventionmodels.Convention{
		ID:     "C1",
		Status: conventionmodels.StatusAcceptedByValidator,
	}))
}

func (s *WorkerSuite) appendEvent(id string, topic models.Topic, conventionID domain.ConventionID, offset time.Duration) {
	s.Require().NoError(s.outbox.Append(s.ctx, models.DomainEvent{
		ID:    domain.EventID(id),
		Topic: topic,
		Payload: models.ConventionPayload{
			Convention: conventionmodels.Convention{ID: conventionID},
		},
		OccurredAt: baseTime.Add(offset),
	}))
}

func (s *WorkerSuite) TestTick_PublishesPendingEvents() {
	var mu sync.Mutex
	var seen []domain.EventID
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionAcceptedByValidator, "mailer",
		bus.HandlerFunc(func(_ context.Context, e models.DomainEvent) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.ID)
			return nil
		})))

	s.appendEvent("evt-1", models.TopicConventionAcceptedByValidator, "C1", 0)
	s.appendEvent("evt-2", models.TopicConventionAcceptedByValidator, "C1", time.Minute)
	s.appendEvent("evt-3", models.TopicConventionAcceptedByValidator, "C1", 2*time.Minute)

	n, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
	s.Equal([]domain.EventID{"evt-1", "evt-2", "evt-3"}, seen)

	pending, err := s.outbox.ListUnpublished(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(pending)

	n, err = s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *WorkerSuite) TestTick_TopicWithoutSubscribers() {
	s.appendEvent("evt-1", models.TopicConventionCancelled, "C1", 0)

	_, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)

	evt, err := s.outbox.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.Equal(models.EventStatusPublished, evt.Status)
}

func (s *WorkerSuite) TestTick_SanityCheck() {
	var calls int
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionRejected, "mailer",
		bus.HandlerFunc(func(context.Context, models.DomainEvent) error {
			calls++
			return nil
		})))

	s.Run("unknown convention is quarantined", func() {
		s.appendEvent("evt-missing", models.TopicConventionRejected, "C404", 0)

		_, err := s.worker.Tick(s.ctx)
		s.Require().NoError(err)

		evt, err := s.outbox.Get(s.ctx, "evt-missing")
		s.Require().NoError(err)
		s.True(evt.WasQuarantined)
		s.Contains(evt.QuarantineReason, "C404")
		s.Zero(calls)
	})

	s.Run("undecodable payload is quarantined", func() {
		s.Require().NoError(s.outbox.Append(s.ctx, models.DomainEvent{
			ID:         "evt-garbled",
			Topic:      models.TopicConventionRejected,
			OccurredAt: baseTime,
		}))

		_, err := s.worker.Tick(s.ctx)
		s.Require().NoError(err)

		evt, err := s.outbox.Get(s.ctx, "evt-garbled")
		s.Require().NoError(err)
		s.True(evt.WasQuarantined)
		s.Zero(calls)
	})
}

type flakyResolver struct{}

func (flakyResolver) GetByID(context.Context, domain.ConventionID) (conventionmodels.Convention, error) {
	return conventionmodels.Convention{}, errors.New("connection refused")
}

func (s *WorkerSuite) TestTick_ResolverUnavailableLeavesEventPending() {
	w := New(s.outbox, s.dispatcher, flakyResolver{}, s.quarantine)
	s.appendEvent("evt-1", models.TopicConventionCancelled, "C1", 0)

	n, err := w.Tick(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	evt, err := s.outbox.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.False(evt.WasQuarantined)
	s.Equal(models.EventStatusNeverPublished, evt.Status)
}

func (s *WorkerSuite) TestTick_PoisonEventIsQuarantined() {
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionRejected, "partner",
		bus.HandlerFunc(func(context.Context, models.DomainEvent) error {
			panic("unexpected payload")
		})))
	s.appendEvent("evt-1", models.TopicConventionRejected, "C1", 0)

	n, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	evt, err := s.outbox.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.True(evt.WasQuarantined)
	s.Equal(models.EventStatusFailed, evt.Status)

	quarantined, err := s.quarantine.List(s.ctx)
	s.Require().NoError(err)
	s.Len(quarantined, 1)
}

func (s *WorkerSuite) TestTick_ReleasedPoisonEventIsRedispatched() {
	var mu sync.Mutex
	poisoned := true
	var delivered []domain.EventID
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionRejected, "partner",
		bus.HandlerFunc(func(_ context.Context, e models.DomainEvent) error {
			mu.Lock()
			defer mu.Unlock()
			if poisoned {
				return bus.ErrPoison
			}
			delivered = append(delivered, e.ID)
			return nil
		})))
	s.appendEvent("evt-1", models.TopicConventionRejected, "C1", 0)

	_, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)

	evt, err := s.outbox.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.Require().True(evt.WasQuarantined)

	mu.Lock()
	poisoned = false
	mu.Unlock()
	s.Require().NoError(s.quarantine.Release(s.ctx, "evt-1"))

	pending, err := s.outbox.ListUnpublished(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(pending, 1)

	n, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal([]domain.EventID{"evt-1"}, delivered)

	evt, err = s.outbox.Get(s.ctx, "evt-1")
	s.Require().NoError(err)
	s.Equal(models.EventStatusPublished, evt.Status)
	s.False(evt.WasQuarantined)
}

func (s *WorkerSuite) TestTick_FailedEventsAreNotRetried() {
	var calls int
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionRejected, "partner",
		bus.HandlerFunc(func(context.Context, models.DomainEvent) error {
			calls++
			return errors.New("partner down")
		})))
	s.appendEvent("evt-1", models.TopicConventionRejected, "C1", 0)

	_, err := s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	_, err = s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, calls)

	s.Require().NoError(s.quarantine.Requeue(s.ctx, "evt-1"))
	_, err = s.worker.Tick(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, calls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	outbox := store.NewInMemory()
	dispatcher := bus.New(outbox)
	w := New(outbox, dispatcher, nil, quarantine.New(outbox), WithInterval(5*time.Millisecond))

	require.NoError(t, outbox.Append(context.Background(), models.DomainEvent{
		ID:         "evt-1",
		Topic:      models.TopicConventionCancelled,
		Payload:    models.ConventionPayload{Convention: conventionmodels.Convention{ID: "C1"}},
		OccurredAt: baseTime,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		evt, err := outbox.Get(context.Background(), "evt-1")
		return err == nil && evt.Status == models.EventStatusPublished
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
