package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/francetravail"
	"immersion/internal/broadcast/oauth"
	"immersion/internal/broadcast/ratelimit"
	"immersion/internal/broadcast/retry"
	"immersion/internal/broadcast/tokencache"
	"immersion/internal/broadcast/webhook"
	conventionmodels "immersion/internal/convention/models"
	feedbackservice "immersion/internal/feedback/service"
	feedbackstore "immersion/internal/feedback/store"
	"immersion/internal/outbox/bus"
	"immersion/internal/outbox/models"
	outboxstore "immersion/internal/outbox/store"
	"immersion/pkg/domain"
	"immersion/pkg/platform/circuit"
)

type GatewaySuite struct {
	suite.Suite
	ctx         context.Context
	server      *httptest.Server
	tokenCalls  atomic.Int32
	submitCalls atomic.Int32
	submit      atomic.Pointer[http.HandlerFunc]
	feedback    *feedbackservice.Recorder
	strategy    retry.Strategy
	partner     *francetravail.Partner
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.tokenCalls.Store(0)
	s.submitCalls.Store(0)
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		n := s.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("POST /partenaire/immersion-pro/v2/demandes-immersion", func(w http.ResponseWriter, r *http.Request) {
		s.submitCalls.Add(1)
		(*s.submit.Load())(w, r)
	})
	s.server = httptest.NewServer(mux)
	s.T().Cleanup(s.server.Close)

	s.feedback = feedbackservice.New(feedbackstore.NewInMemory())
	s.strategy = retry.Strategy{Base: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Deadline: 200 * time.Millisecond}

	client := broadcast.NewClient(francetravail.Name, time.Second)
	fetcher := oauth.NewClientCredentials(oauth.Config{AuthBaseURL: s.server.URL, ClientID: "id", ClientSecret: "secret"},
		client, ratelimit.New("ft.common", 0, 0), s.strategy)
	tokens := tokencache.New(francetravail.Name, tokencache.NewMemoryStore(nil))
	s.partner = francetravail.New(francetravail.Config{APIBaseURL: s.server.URL}, client, tokens, fetcher.Fetch)
}

func (s *GatewaySuite) onSubmit(h http.HandlerFunc) {
	s.submit.Store(&h)
}

func (s *GatewaySuite) gateway(opts ...Option) *Gateway {
	return New(s.partner, ratelimit.New("ft.broadcast", 0, 0), s.strategy, s.feedback, opts...)
}

func acceptedEvent() models.DomainEvent {
	validatedAt := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
	return models.DomainEvent{
		ID:    "evt-1",
		Topic: models.TopicConventionAcceptedByValidator,
		Payload: models.ConventionPayload{Convention: conventionmodels.Convention{
			ID:             "C1",
			Status:         conventionmodels.StatusAcceptedByValidator,
			DateValidation: &validatedAt,
			Signatories: map[domain.Role]conventionmodels.Signatory{
				domain.RoleBeneficiary: {Role: domain.RoleBeneficiary, Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
			},
		}},
		OccurredAt: validatedAt,
	}
}

func (s *GatewaySuite) history() []string {
	feedbacks, err := s.feedback.History(s.ctx, "C1")
	s.Require().NoError(err)
	out := make([]string, len(feedbacks))
	for i, f := range feedbacks {
		if f.SubscriberError != nil {
			out[i] = "error:" + http.StatusText(f.SubscriberError.Status)
		} else {
			out[i] = "ok:" + http.StatusText(f.Response.HTTPStatus)
		}
	}
	return out
}

func (s *GatewaySuite) TestSuccessfulBroadcast() {
	var received francetravail.Convention
	s.onSubmit(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("Bearer token-1", r.Header.Get("Authorization"))
		s.Require().NoError(json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	})

	err := s.gateway().Handle(s.ctx, acceptedEvent())
	s.Require().NoError(err)
	s.Equal("C1", received.ID)
	s.Equal("DEMANDE_VALIDÉE", received.Statut)
	s.Equal("jane@example.com", received.Email)
	s.Equal([]string{"ok:Created"}, s.history())

	s.Require().NoError(s.gateway().Handle(s.ctx, acceptedEvent()))
	s.Equal(int32(1), s.tokenCalls.Load(), "token is reused from the cache")
}

func (s *GatewaySuite) TestNotFoundIsDefinitive() {
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "identity not found"})
	})

	err := s.gateway().Handle(s.ctx, acceptedEvent())
	s.Require().Error(err)
	s.False(broadcast.IsRetryable(err))
	s.Equal(int32(1), s.submitCalls.Load(), "no further attempt")

	feedbacks, err := s.feedback.Latest(s.ctx, "C1")
	s.Require().NoError(err)
	s.Require().Len(feedbacks, 1)
	s.Require().NotNil(feedbacks[0].SubscriberError)
	s.Equal(404, feedbacks[0].SubscriberError.Status)
	s.Equal("identity not found", feedbacks[0].SubscriberError.Message)
	s.Equal(francetravail.Name, feedbacks[0].ConsumerName)
}

func (s *GatewaySuite) TestOtherClientErrorsKeepTheirStatus() {
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := s.gateway().Handle(s.ctx, acceptedEvent())
	s.Require().Error(err)
	s.Equal(int32(1), s.submitCalls.Load())
	s.Equal([]string{"error:Bad Request"}, s.history())
}

func (s *GatewaySuite) TestTransientFailuresAreRetried() {
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) {
		if s.submitCalls.Load() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	s.Require().NoError(s.gateway().Handle(s.ctx, acceptedEvent()))
	s.Equal(int32(3), s.submitCalls.Load())
	s.Equal([]string{
		"error:Internal Server Error",
		"error:Internal Server Error",
		"ok:OK",
	}, s.history())
}

func (s *GatewaySuite) TestExhaustedRetriesRecordStatus500() {
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := s.gateway().Handle(s.ctx, acceptedEvent())
	s.Require().Error(err)
	s.True(broadcast.IsRetryable(err))
	s.Greater(s.submitCalls.Load(), int32(1))

	feedbacks, err := s.feedback.Latest(s.ctx, "C1")
	s.Require().NoError(err)
	s.Equal(500, feedbacks[0].SubscriberError.Status)
}

func (s *GatewaySuite) TestRevokedTokenIsRefreshed() {
	s.onSubmit(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	s.Require().NoError(s.gateway().Handle(s.ctx, acceptedEvent()))
	s.Equal(int32(2), s.tokenCalls.Load())
}

func (s *GatewaySuite) TestOpenBreakerSkipsRetries() {
	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	breaker := circuit.New(francetravail.Name, circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	gw := s.gateway(WithBreaker(breaker))

	s.Require().Error(gw.Handle(s.ctx, acceptedEvent()))
	s.True(breaker.IsOpen())

	before := s.submitCalls.Load()
	s.Require().Error(gw.Handle(s.ctx, acceptedEvent()))
	s.Equal(before+1, s.submitCalls.Load(), "single attempt while open")

	s.onSubmit(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	s.Require().NoError(gw.Handle(s.ctx, acceptedEvent()))
	s.False(breaker.IsOpen())
}

func (s *GatewaySuite) TestUndecodablePayloadIsPoison() {
	evt := acceptedEvent()
	evt.Payload = nil

	err := s.gateway().Handle(s.ctx, evt)
	s.True(errors.Is(err, bus.ErrPoison))
	s.Zero(s.submitCalls.Load())
}

func (s *GatewaySuite) TestSubscribesOnTheBus() {
	gw := s.gateway()
	s.Equal(models.SubscriberID(francetravail.Name), gw.SubscriberID())

	s.Run("consumers sharing a name subscribe under their ids", func() {
		client := broadcast.NewClient("acme", time.Second)
		dispatcher := bus.New(outboxstore.NewInMemory())
		for _, id := range []string{"consumer-1", "consumer-2"} {
			callback := webhook.New(webhook.Consumer{ID: id, Name: "acme", CallbackURL: s.server.URL + "/callback"}, client)
			gw := New(callback, ratelimit.New("acme.broadcast", 0, 0), s.strategy, s.feedback, WithConsumerID(id))
			s.Equal(models.SubscriberID(id), gw.SubscriberID())
			s.Require().NoError(dispatcher.Subscribe(models.TopicConventionAcceptedByValidator, gw.SubscriberID(), gw))
		}
		s.ElementsMatch([]models.SubscriberID{"consumer-1", "consumer-2"},
			dispatcher.Subscribers(models.TopicConventionAcceptedByValidator))
	})

	s.Run("empty consumer id keeps the partner name", func() {
		s.Equal(models.SubscriberID(francetravail.Name), s.gateway(WithConsumerID("")).SubscriberID())
	})
}
