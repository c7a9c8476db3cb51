// Package bus routes persisted events to the subscribers of their topic.
//
// A Dispatcher is built once at startup and passed to whoever needs it; there is
// no package-level registry. Every handler invocation is independent: one
// subscriber failing never stops the others and never counts as a success for
// itself. Subscribers that already succeeded for an event are not called again.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	outboxmetrics "immersion/internal/outbox/metrics"
	"immersion/internal/outbox/models"
	"immersion/internal/outbox/ports"
	"immersion/pkg/platform/clock"
)

// ErrPoison marks a failure no retry can fix. Handlers wrap it to ask for the
// event to be quarantined.
var ErrPoison = errors.New("poison event")

// NoSubscriber is recorded as the publication of an event whose topic has no
// subscribers, so the event leaves the queue.
const NoSubscriber models.SubscriberID = "none"

// Handler handles one event of a known topic and reports success or failure.
type Handler interface {
	Handle(ctx context.Context, event models.DomainEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event models.DomainEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event models.DomainEvent) error {
	return f(ctx, event)
}

type subscription struct {
	id      models.SubscriberID
	handler Handler
}

// Result is the outcome for one subscriber.
type Result struct {
	SubscriberID models.SubscriberID
	Skipped      bool
	Err          error
}

// Report summarizes one Publish call.
type Report struct {
	Event   models.DomainEvent
	Results []Result
	// Poison is set when a handler returned ErrPoison or panicked.
	Poison       bool
	PoisonReason string
	// Err is set when the event could not be loaded or a publication could not
	// be recorded.
	Err error
}

// Dispatcher is the in-process event bus.
type Dispatcher struct {
	store   ports.Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics *outboxmetrics.Metrics
	tracer  trace.Tracer

	mu   sync.RWMutex
	subs map[models.Topic][]subscription
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *outboxmetrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

func New(store ports.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		clock:  clock.Real(),
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("immersion/outbox/bus"),
		subs:   make(map[models.Topic][]subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers handler under id for topic. An id is unique per topic.
func (d *Dispatcher) Subscribe(topic models.Topic, id models.SubscriberID, handler Handler) error {
	if id == "" || id == NoSubscriber {
		return fmt.Errorf("invalid subscriber id %q", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.subs[topic] {
		if s.id == id {
			return fmt.Errorf("subscriber %s already registered for %s", id, topic)
		}
	}
	d.subs[topic] = append(d.subs[topic], subscription{id: id, handler: handler})
	return nil
}

// Subscribers returns the ids registered for topic in registration order.
func (d *Dispatcher) Subscribers(topic models.Topic) []models.SubscriberID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]models.SubscriberID, 0, len(d.subs[topic]))
	for _, s := range d.subs[topic] {
		ids = append(ids, s.id)
	}
	return ids
}

// Publish delivers the stored version of event to every subscriber of its topic
// that has not succeeded yet, concurrently, and records each outcome.
func (d *Dispatcher) Publish(ctx context.Context, event models.DomainEvent) Report {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "outbox.dispatch", trace.WithAttributes(
		attribute.String("event.id", event.ID.String()),
		attribute.String("event.topic", event.Topic.String()),
	))
	defer span.End()

	current, err := d.store.Get(ctx, event.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load event")
		return Report{Event: event, Err: fmt.Errorf("load event %s: %w", event.ID, err)}
	}
	report := Report{Event: current}
	if current.WasQuarantined {
		d.logger.DebugContext(ctx, "skipping quarantined event", "event_id", current.ID)
		return report
	}

	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[current.Topic]...)
	d.mu.RUnlock()

	if len(subs) == 0 {
		updated, err := d.store.RecordPublication(ctx, current.ID, models.Publication{
			SubscriberID: NoSubscriber,
			Outcome:      models.OutcomeOK,
			At:           d.clock.Now(),
		}, nil)
		report.Event, report.Err = updated, err
		return report
	}

	required := make([]models.SubscriberID, len(subs))
	for i, s := range subs {
		required[i] = s.id
	}

	report.Results = make([]Result, len(subs))
	var g errgroup.Group
	for i, s := range subs {
		report.Results[i].SubscriberID = s.id
		if current.SucceededFor(s.id) {
			report.Results[i].Skipped = true
			d.metrics.IncrementOutcome(string(s.id), "skipped")
			d.logger.DebugContext(ctx, "subscriber already succeeded",
				"event_id", current.ID,
				"subscriber_id", s.id,
			)
			continue
		}
		g.Go(func() error {
			report.Results[i].Err = d.invoke(ctx, s, current)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		if r.Skipped {
			continue
		}
		pub := models.Publication{SubscriberID: r.SubscriberID, Outcome: models.OutcomeOK, At: d.clock.Now()}
		if r.Err != nil {
			pub.Outcome = models.OutcomeError
			pub.Error = r.Err.Error()
			if errors.Is(r.Err, ErrPoison) && !report.Poison {
				report.Poison = true
				report.PoisonReason = fmt.Sprintf("subscriber %s: %v", r.SubscriberID, r.Err)
			}
		}
		d.metrics.IncrementOutcome(string(r.SubscriberID), string(pub.Outcome))
		updated, err := d.store.RecordPublication(ctx, current.ID, pub, required)
		if err != nil {
			report.Err = errors.Join(report.Err, fmt.Errorf("record publication for %s: %w", r.SubscriberID, err))
			continue
		}
		report.Event = updated
	}

	d.metrics.ObserveDispatch(current.Topic.String(), time.Since(start))
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, "record publication")
	}
	return report
}

func (d *Dispatcher) invoke(ctx context.Context, s subscription, event models.DomainEvent) (err error) {
	ctx, span := d.tracer.Start(ctx, "outbox.handle", trace.WithAttributes(
		attribute.String("subscriber.id", string(s.id)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panicked: %v", ErrPoison, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			d.logger.WarnContext(ctx, "subscriber failed",
				"event_id", event.ID,
				"topic", event.Topic,
				"subscriber_id", s.id,
				"error", err,
			)
		}
	}()
	return s.handler.Handle(ctx, event)
}
