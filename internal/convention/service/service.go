package service

import (
	"context"
	"log/slog"

	conventionmetrics "immersion/internal/convention/metrics"
	"immersion/internal/convention/models"
	outboxmodels "immersion/internal/outbox/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/clock"
	"immersion/pkg/platform/idgen"
)

// ConventionStore is the repository port for conventions.
type ConventionStore interface {
	GetByID(ctx context.Context, id domain.ConventionID) (models.Convention, error)
	Insert(ctx context.Context, c models.Convention) error
	Update(ctx context.Context, c models.Convention) error
}

// OutboxStore is the write side of the outbox as seen by the workflow.
type OutboxStore interface {
	Append(ctx context.Context, event outboxmodels.DomainEvent) error
}

// UnitOfWork runs fn atomically. Stores called with the ctx handed to fn take
// part in the same unit of work.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service runs convention transitions. Each change is validated, authorized,
// reduced, then persisted with its event in one unit of work; delivery of the
// event happens later and never blocks the caller.
type Service struct {
	conventions ConventionStore
	outbox      OutboxStore
	tx          UnitOfWork
	clock       clock.Clock
	ids         idgen.Generator
	logger      *slog.Logger
	metrics     *conventionmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *conventionmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

func New(conventions ConventionStore, outbox OutboxStore, tx UnitOfWork, opts ...Option) *Service {
	s := &Service{
		conventions: conventions,
		outbox:      outbox,
		tx:          tx,
		clock:       clock.Real(),
		ids:         idgen.UUID(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
