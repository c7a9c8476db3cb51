// Package gateway turns an external partner into an outbox subscriber. Each
// delivery goes through the partner's broadcast rate limiter, then the retry
// strategy, then the partner's raw call, and every attempt is recorded as
// broadcast feedback.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/metrics"
	"immersion/internal/broadcast/ratelimit"
	"immersion/internal/broadcast/retry"
	feedbackmodels "immersion/internal/feedback/models"
	"immersion/internal/outbox/bus"
	"immersion/internal/outbox/models"
	"immersion/pkg/platform/circuit"
	"immersion/pkg/platform/clock"
)

// Partner performs one raw delivery attempt. Failures should be
// *broadcast.PartnerError values so they can be classified.
type Partner interface {
	Name() string
	Send(ctx context.Context, event models.DomainEvent) (broadcast.Response, error)
}

// FeedbackRecorder stores the outcome of each attempt.
type FeedbackRecorder interface {
	Record(ctx context.Context, f feedbackmodels.BroadcastFeedback) error
}

type Gateway struct {
	partner    Partner
	consumerID string
	limiter    *ratelimit.Limiter
	retry      retry.Strategy
	breaker    *circuit.Breaker
	feedback   FeedbackRecorder
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Gateway)

// WithConsumerID sets the identifier stored in feedback and used on the bus.
// Defaults to the partner name.
func WithConsumerID(id string) Option {
	return func(g *Gateway) {
		if id != "" {
			g.consumerID = id
		}
	}
}

// WithBreaker makes the gateway skip retries while the partner is down: once
// the breaker opens, each event gets a single attempt until the partner
// answers again.
func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) {
		g.breaker = b
	}
}

func WithClock(c clock.Clock) Option {
	return func(g *Gateway) {
		g.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func New(partner Partner, limiter *ratelimit.Limiter, strategy retry.Strategy, feedback FeedbackRecorder, opts ...Option) *Gateway {
	g := &Gateway{
		partner:    partner,
		consumerID: partner.Name(),
		limiter:    limiter,
		retry:      strategy,
		feedback:   feedback,
		clock:      clock.Real(),
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("immersion/broadcast"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string { return g.partner.Name() }

// SubscriberID is the id the gateway subscribes under on the bus. It follows
// the consumer id so consumers sharing a display name stay distinct.
func (g *Gateway) SubscriberID() models.SubscriberID {
	return models.SubscriberID(g.consumerID)
}

// Handle implements bus.Handler. It returns nil once the partner accepted the
// event, and the last attempt's error otherwise.
func (g *Gateway) Handle(ctx context.Context, event models.DomainEvent) error {
	if event.Payload == nil {
		return fmt.Errorf("%w: event %s has no decodable payload", bus.ErrPoison, event.ID)
	}
	name := g.partner.Name()
	ctx, span := g.tracer.Start(ctx, "broadcast.send", trace.WithAttributes(
		attribute.String("partner", name),
		attribute.String("event.id", event.ID.String()),
		attribute.String("event.topic", event.Topic.String()),
	))
	defer span.End()

	start := time.Now()
	attempt := 0
	send := func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			g.metrics.IncrementRetry(name)
		}
		resp, err := g.partner.Send(ctx, event)
		g.record(ctx, event, attempt, resp, err)
		return err
	}

	err := g.limiter.Run(ctx, func(ctx context.Context) error {
		if g.breaker != nil && g.breaker.IsOpen() {
			return send(ctx)
		}
		return g.retry.Do(ctx, send)
	})
	g.metrics.ObserveCall(name, time.Since(start))
	g.trackAvailability(ctx, err)

	if err == nil {
		g.metrics.IncrementCall(name, "ok")
		return nil
	}
	g.metrics.IncrementCall(name, string(broadcast.CategoryOf(err)))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(broadcast.CategoryOf(err)))
	span.SetAttributes(attribute.Int("attempts", attempt))

	if broadcast.IsRetryable(err) {
		g.logger.ErrorContext(ctx, "partner broadcast failed after retries",
			"partner", name,
			"event_id", event.ID,
			"attempts", attempt,
			"error", err,
		)
	} else {
		g.logger.WarnContext(ctx, "partner rejected broadcast",
			"partner", name,
			"event_id", event.ID,
			"status", broadcast.FeedbackStatus(err),
			"error", err,
		)
	}
	return err
}

func (g *Gateway) record(ctx context.Context, event models.DomainEvent, attempt int, resp broadcast.Response, err error) {
	if g.feedback == nil {
		return
	}
	convention := event.Payload.ConventionSnapshot()
	f := feedbackmodels.BroadcastFeedback{
		ConventionID:  convention.ID,
		ConsumerID:    g.consumerID,
		ConsumerName:  g.partner.Name(),
		RequestParams: feedbackmodels.RequestParams{
			ConventionID:     convention.ID,
			ConventionStatus: string(convention.Status),
			EventID:          event.ID,
			Topic:            event.Topic.String(),
			Attempt:          attempt,
		},
		OccurredAt: g.clock.Now(),
	}
	if err != nil {
		f.SubscriberError = subscriberError(err)
	} else {
		f.Response = &feedbackmodels.Response{HTTPStatus: resp.StatusCode, Body: resp.Body}
	}
	if rerr := g.feedback.Record(ctx, f); rerr != nil {
		g.logger.ErrorContext(ctx, "failed to record broadcast feedback",
			"partner", g.partner.Name(),
			"convention_id", convention.ID,
			"error", rerr,
		)
	}
}

func subscriberError(err error) *feedbackmodels.SubscriberError {
	out := &feedbackmodels.SubscriberError{
		Message: err.Error(),
		Status:  broadcast.FeedbackStatus(err),
	}
	var pe *broadcast.PartnerError
	if errors.As(err, &pe) {
		out.Message = pe.Message
		if out.Message == "" {
			out.Message = pe.Error()
		}
		if pe.Body != nil {
			out.Error = pe.Body
		} else if pe.Underlying != nil {
			out.Error = pe.Underlying.Error()
		}
	}
	return out
}

// trackAvailability feeds the breaker. Definitive answers prove the partner is
// reachable and count as successes.
func (g *Gateway) trackAvailability(ctx context.Context, err error) {
	if g.breaker == nil {
		return
	}
	var change circuit.StateChange
	if err != nil && broadcast.IsRetryable(err) {
		_, change = g.breaker.RecordFailure()
	} else {
		_, change = g.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		g.metrics.SetCircuitOpen(g.partner.Name(), true)
		g.logger.ErrorContext(ctx, "partner circuit opened, retries suspended", "partner", g.partner.Name())
	case change.Closed:
		g.metrics.SetCircuitOpen(g.partner.Name(), false)
		g.logger.InfoContext(ctx, "partner circuit closed", "partner", g.partner.Name())
	}
}
