package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immersion/internal/feedback/models"
	"immersion/internal/feedback/store"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/clock"
)

type RecorderSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *clock.Fixed
	recorder *Recorder
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFixed(time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC))
	s.recorder = New(store.NewInMemory(), WithClock(s.clock))
}

func (s *RecorderSuite) failure(consumer string, status int) models.BroadcastFeedback {
	return models.BroadcastFeedback{
		ConventionID:    "C1",
		ConsumerID:      consumer + "-id",
		ConsumerName:    consumer,
		RequestParams:   models.RequestParams{ConventionID: "C1", Attempt: 1},
		SubscriberError: &models.SubscriberError{Message: "failed", Status: status},
	}
}

func (s *RecorderSuite) TestRecordAndLatest() {
	s.Require().NoError(s.recorder.Record(s.ctx, s.failure("france-travail", 500)))
	s.clock.Advance(time.Minute)
	s.Require().NoError(s.recorder.Record(s.ctx, models.BroadcastFeedback{
		ConventionID: "C1",
		ConsumerName: "france-travail",
		Response:     &models.Response{HTTPStatus: 200},
	}))
	s.Require().NoError(s.recorder.Record(s.ctx, s.failure("acme", 404)))

	latest, err := s.recorder.Latest(s.ctx, "C1")
	s.Require().NoError(err)
	s.Require().Len(latest, 2)
	s.Equal("acme", latest[0].ConsumerName)
	s.Equal(404, latest[0].SubscriberError.Status)
	s.Equal("france-travail", latest[1].ConsumerName)
	s.True(latest[1].Succeeded())
	s.Equal(s.clock.Now(), latest[1].OccurredAt)

	history, err := s.recorder.History(s.ctx, "C1")
	s.Require().NoError(err)
	s.Len(history, 3)
}

func (s *RecorderSuite) TestRecordValidation() {
	err := s.recorder.Record(s.ctx, models.BroadcastFeedback{ConsumerName: "acme"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RecorderSuite) TestMarkHandledByAgency() {
	s.Require().NoError(s.recorder.Record(s.ctx, s.failure("acme", 404)))

	s.Run("flags the consumer's feedback", func() {
		s.Require().NoError(s.recorder.MarkHandledByAgency(s.ctx, "C1", "acme"))
		latest, err := s.recorder.Latest(s.ctx, "C1")
		s.Require().NoError(err)
		s.True(latest[0].HandledByAgency)
	})

	s.Run("unknown consumer", func() {
		err := s.recorder.MarkHandledByAgency(s.ctx, "C1", "nobody")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("consumer name required", func() {
		err := s.recorder.MarkHandledByAgency(s.ctx, "C1", "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
