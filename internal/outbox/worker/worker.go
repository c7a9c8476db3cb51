// Package worker polls the outbox and hands unpublished events to the dispatcher.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	conventionmodels "immersion/internal/convention/models"
	"immersion/internal/outbox/bus"
	outboxmetrics "immersion/internal/outbox/metrics"
	"immersion/internal/outbox/models"
	"immersion/internal/outbox/ports"
	"immersion/internal/outbox/quarantine"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
)

const (
	defaultInterval    = 10 * time.Second
	defaultBatchSize   = 50
	defaultConcurrency = 4
)

// Dispatcher publishes one event to its subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event models.DomainEvent) bus.Report
}

// ConventionResolver checks that the convention an event refers to still exists.
type ConventionResolver interface {
	GetByID(ctx context.Context, id domain.ConventionID) (conventionmodels.Convention, error)
}

// Quarantiner takes poison events out of the queue.
type Quarantiner interface {
	MarkPoison(ctx context.Context, id domain.EventID, origin quarantine.Origin, reason string) error
}

// Worker runs polling passes until its context is cancelled. Within a topic,
// events are dispatched one after the other in occurrence order; topics run in
// parallel up to the configured concurrency.
type Worker struct {
	store       ports.Store
	dispatcher  Dispatcher
	conventions ConventionResolver
	quarantine  Quarantiner

	interval    time.Duration
	batchSize   int
	concurrency int
	logger      *slog.Logger
	metrics     *outboxmetrics.Metrics
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *outboxmetrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(store ports.Store, dispatcher Dispatcher, conventions ConventionResolver, q Quarantiner, opts ...Option) *Worker {
	w := &Worker{
		store:       store,
		dispatcher:  dispatcher,
		conventions: conventions,
		quarantine:  q,
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is done. A failing pass is logged and the next one runs
// on schedule.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "outbox worker started",
		"interval", w.interval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
	)
	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox polling pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one polling pass and returns how many events were handed to the
// dispatcher.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	events, err := w.store.ListUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	w.metrics.ObserveBatch(len(events))
	if len(events) == 0 {
		return 0, nil
	}

	var order []models.Topic
	byTopic := make(map[models.Topic][]models.DomainEvent)
	for _, e := range events {
		if _, seen := byTopic[e.Topic]; !seen {
			order = append(order, e.Topic)
		}
		byTopic[e.Topic] = append(byTopic[e.Topic], e)
	}

	dispatched := make([]int, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, topic := range order {
		g.Go(func() error {
			for _, e := range byTopic[topic] {
				if err := gctx.Err(); err != nil {
					return err
				}
				if w.process(gctx, e) {
					dispatched[i]++
				}
			}
			return nil
		})
	}
	err = g.Wait()

	total := 0
	for _, n := range dispatched {
		total += n
	}
	return total, err
}

// process checks and dispatches one event. It reports whether the dispatcher
// was called.
func (w *Worker) process(ctx context.Context, e models.DomainEvent) bool {
	reason, err := w.sanityCheck(ctx, e)
	if err != nil {
		w.logger.WarnContext(ctx, "sanity check unavailable, will retry next pass",
			"event_id", e.ID,
			"error", err,
		)
		return false
	}
	if reason != "" {
		w.quarantineEvent(ctx, e.ID, quarantine.OriginSanityCheck, reason)
		return false
	}

	report := w.dispatcher.Publish(ctx, e)
	if report.Err != nil {
		w.logger.ErrorContext(ctx, "event dispatch incomplete",
			"event_id", e.ID,
			"topic", e.Topic,
			"error", report.Err,
		)
	}
	if report.Poison {
		w.quarantineEvent(ctx, e.ID, quarantine.OriginPoison, report.PoisonReason)
	}
	return true
}

// sanityCheck returns a non-empty reason when the event can never be
// dispatched, and an error when the check itself could not run.
func (w *Worker) sanityCheck(ctx context.Context, e models.DomainEvent) (string, error) {
	if e.Payload == nil {
		return "payload cannot be decoded for topic " + e.Topic.String(), nil
	}
	id := e.Payload.ConventionSnapshot().ID
	if id.IsNil() {
		return "payload has no convention id", nil
	}
	if w.conventions == nil {
		return "", nil
	}
	if _, err := w.conventions.GetByID(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "convention " + id.String() + " does not exist", nil
		}
		return "", err
	}
	return "", nil
}

func (w *Worker) quarantineEvent(ctx context.Context, id domain.EventID, origin quarantine.Origin, reason string) {
	if err := w.quarantine.MarkPoison(ctx, id, origin, reason); err != nil {
		w.logger.ErrorContext(ctx, "failed to quarantine event",
			"event_id", id,
			"reason", reason,
			"error", err,
		)
	}
}
