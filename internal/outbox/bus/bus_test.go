package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	conventionmodels "immersion/internal/convention/models"
	"immersion/internal/outbox/models"
	"immersion/internal/outbox/store"
	"immersion/pkg/domain"
	"immersion/pkg/platform/clock"
)

type DispatcherSuite struct {
	suite.Suite
	store      *store.InMemoryStore
	dispatcher *Dispatcher
	ctx        context.Context
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.dispatcher = New(s.store, WithClock(clock.NewFixed(time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC))))
}

func (s *DispatcherSuite) appendEvent(id string) models.DomainEvent {
	evt := models.DomainEvent{
		ID:    domain.EventID("evt-" + id),
		Topic: models.TopicConventionAcceptedByValidator,
		Payload: models.ConventionPayload{
			Convention: conventionmodels.Convention{ID: "C1", Status: conventionmodels.StatusAcceptedByValidator},
		},
		OccurredAt: time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC),
		Status:     models.EventStatusNeverPublished,
	}
	s.Require().NoError(s.store.Append(s.ctx, evt))
	return evt
}

func counting(calls *atomic.Int32, err error) HandlerFunc {
	return func(context.Context, models.DomainEvent) error {
		calls.Add(1)
		return err
	}
}

func (s *DispatcherSuite) TestSubscribe() {
	topic := models.TopicConventionRejected
	s.Require().NoError(s.dispatcher.Subscribe(topic, "mailer", counting(new(atomic.Int32), nil)))
	s.Error(s.dispatcher.Subscribe(topic, "mailer", counting(new(atomic.Int32), nil)))
	s.Error(s.dispatcher.Subscribe(topic, "", counting(new(atomic.Int32), nil)))
	s.Equal([]models.SubscriberID{"mailer"}, s.dispatcher.Subscribers(topic))
	s.Empty(s.dispatcher.Subscribers(models.TopicConventionCancelled))
}

func (s *DispatcherSuite) TestPublish_IndependentHandlers() {
	var okCalls, failingCalls atomic.Int32
	topic := models.TopicConventionAcceptedByValidator
	s.Require().NoError(s.dispatcher.Subscribe(topic, "mailer", counting(&okCalls, nil)))
	s.Require().NoError(s.dispatcher.Subscribe(topic, "partner", counting(&failingCalls, errors.New("partner down"))))
	evt := s.appendEvent("1")

	report := s.dispatcher.Publish(s.ctx, evt)
	s.Require().NoError(report.Err)
	s.False(report.Poison)
	s.Equal(int32(1), okCalls.Load())
	s.Equal(int32(1), failingCalls.Load())
	s.Equal(models.EventStatusFailed, report.Event.Status)
	s.True(report.Event.SucceededFor("mailer"))
	s.False(report.Event.SucceededFor("partner"))

	s.Run("re-dispatch skips subscribers that already succeeded", func() {
		report := s.dispatcher.Publish(s.ctx, evt)
		s.Require().NoError(report.Err)
		s.Equal(int32(1), okCalls.Load(), "no second side effect for mailer")
		s.Equal(int32(2), failingCalls.Load())
		s.True(report.Results[0].Skipped)
	})
}

func (s *DispatcherSuite) TestPublish_AllSucceed() {
	var calls atomic.Int32
	topic := models.TopicConventionAcceptedByValidator
	s.Require().NoError(s.dispatcher.Subscribe(topic, "mailer", counting(&calls, nil)))
	s.Require().NoError(s.dispatcher.Subscribe(topic, "partner", counting(&calls, nil)))
	evt := s.appendEvent("2")

	report := s.dispatcher.Publish(s.ctx, evt)
	s.Require().NoError(report.Err)
	s.Equal(models.EventStatusPublished, report.Event.Status)

	report = s.dispatcher.Publish(s.ctx, evt)
	s.Equal(int32(2), calls.Load(), "a published event is not delivered twice")
	s.Equal(models.EventStatusPublished, report.Event.Status)
}

func (s *DispatcherSuite) TestPublish_Poison() {
	topic := models.TopicConventionAcceptedByValidator
	s.Require().NoError(s.dispatcher.Subscribe(topic, "partner", HandlerFunc(func(context.Context, models.DomainEvent) error {
		return fmt.Errorf("unknown agency: %w", ErrPoison)
	})))
	s.Require().NoError(s.dispatcher.Subscribe(topic, "panicky", HandlerFunc(func(context.Context, models.DomainEvent) error {
		panic("nil map")
	})))
	evt := s.appendEvent("3")

	report := s.dispatcher.Publish(s.ctx, evt)
	s.True(report.Poison)
	s.Contains(report.PoisonReason, "partner")
	s.ErrorIs(report.Results[1].Err, ErrPoison)
}

func (s *DispatcherSuite) TestPublish_NoSubscribers() {
	evt := s.appendEvent("4")
	report := s.dispatcher.Publish(s.ctx, evt)
	s.Require().NoError(report.Err)
	s.Equal(models.EventStatusPublished, report.Event.Status)
}

func (s *DispatcherSuite) TestPublish_QuarantinedEventIsSkipped() {
	var calls atomic.Int32
	s.Require().NoError(s.dispatcher.Subscribe(models.TopicConventionAcceptedByValidator, "mailer", counting(&calls, nil)))
	evt := s.appendEvent("5")
	s.Require().NoError(s.store.Quarantine(s.ctx, evt.ID, "bad agency"))

	report := s.dispatcher.Publish(s.ctx, evt)
	s.Require().NoError(report.Err)
	s.Zero(calls.Load())
	s.Empty(report.Results)
}

func (s *DispatcherSuite) TestPublish_UnknownEvent() {
	report := s.dispatcher.Publish(s.ctx, models.DomainEvent{ID: "missing"})
	s.Error(report.Err)
}
