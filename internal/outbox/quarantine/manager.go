// Package quarantine is the escape hatch for poison events: it takes them out of
// automatic dispatch and lets an operator put them back once the data is fixed.
package quarantine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	outboxmetrics "immersion/internal/outbox/metrics"
	"immersion/internal/outbox/models"
	"immersion/internal/outbox/ports"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/sentinel"
)

// Origin says who quarantined an event.
type Origin string

const (
	OriginSanityCheck Origin = "sanity_check"
	OriginPoison      Origin = "poison"
	OriginOperator    Origin = "operator"
)

const defaultFailedLimit = 100

type Manager struct {
	store   ports.Store
	logger  *slog.Logger
	metrics *outboxmetrics.Metrics
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *outboxmetrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func New(store ports.Store, opts ...Option) *Manager {
	m := &Manager{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MarkPoison quarantines an event. A reason is required so whoever investigates
// knows where to start.
func (m *Manager) MarkPoison(ctx context.Context, id domain.EventID, origin Origin, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeBadRequest, "a quarantine reason is required")
	}
	if err := m.store.Quarantine(ctx, id, reason); err != nil {
		return translate(err, id, "failed to quarantine event")
	}
	m.metrics.IncrementQuarantined(string(origin))
	m.logger.ErrorContext(ctx, "event quarantined",
		"event_id", id,
		"origin", origin,
		"reason", reason,
	)
	return nil
}

// Release puts a quarantined event back in the dispatch queue. It is picked up
// on the next polling pass unless it was already published.
func (m *Manager) Release(ctx context.Context, id domain.EventID) error {
	if err := m.store.Release(ctx, id); err != nil {
		return translate(err, id, "failed to release event")
	}
	m.metrics.IncrementReleased()
	m.logger.InfoContext(ctx, "event released", "event_id", id)
	return nil
}

// Requeue gives a failed event another dispatch round. Failed events are never
// retried automatically.
func (m *Manager) Requeue(ctx context.Context, id domain.EventID) error {
	if err := m.store.Requeue(ctx, id); err != nil {
		return translate(err, id, "failed to requeue event")
	}
	m.metrics.IncrementRequeued()
	m.logger.InfoContext(ctx, "event requeued", "event_id", id)
	return nil
}

func (m *Manager) List(ctx context.Context) ([]models.DomainEvent, error) {
	events, err := m.store.ListQuarantined(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list quarantined events")
	}
	return events, nil
}

func (m *Manager) ListFailed(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	events, err := m.store.ListFailed(ctx, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list failed events")
	}
	return events, nil
}

func translate(err error, id domain.EventID, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "event "+id.String()+" not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "event "+id.String()+" is already published")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
