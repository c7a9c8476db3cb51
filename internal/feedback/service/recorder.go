// Package service records partner broadcast outcomes and exposes them to
// agencies.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"immersion/internal/feedback/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/clock"
	"immersion/pkg/platform/sentinel"
)

// Store persists broadcast feedback.
type Store interface {
	Save(ctx context.Context, f models.BroadcastFeedback) error
	ListByConvention(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error)
	LatestByConsumer(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error)
	MarkHandledByAgency(ctx context.Context, id domain.ConventionID, consumerName string) error
}

type Recorder struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(r *Recorder) {
		r.clock = c
	}
}

func New(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		clock:  clock.Real(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores one attempt. A zero OccurredAt is stamped with the clock.
func (r *Recorder) Record(ctx context.Context, f models.BroadcastFeedback) error {
	if f.ConventionID.IsNil() || f.ConsumerName == "" {
		return dErrors.New(dErrors.CodeValidation, "feedback needs a convention id and a consumer name")
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = r.clock.Now()
	}
	if err := r.store.Save(ctx, f); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record broadcast feedback")
	}
	if f.SubscriberError != nil {
		r.logger.WarnContext(ctx, "partner broadcast attempt failed",
			"convention_id", f.ConventionID,
			"partner", f.ConsumerName,
			"status", f.SubscriberError.Status,
			"attempt", f.RequestParams.Attempt,
		)
	}
	return nil
}

// Latest returns the last attempt per consumer for a convention.
func (r *Recorder) Latest(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	out, err := r.store.LatestByConsumer(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load broadcast feedbacks")
	}
	return out, nil
}

// History returns every attempt for a convention, oldest first.
func (r *Recorder) History(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	out, err := r.store.ListByConvention(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load broadcast feedbacks")
	}
	return out, nil
}

// MarkHandledByAgency records that the agency dealt with a consumer's
// failure by hand.
func (r *Recorder) MarkHandledByAgency(ctx context.Context, id domain.ConventionID, consumerName string) error {
	consumerName = strings.TrimSpace(consumerName)
	if consumerName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "consumer name is required")
	}
	err := r.store.MarkHandledByAgency(ctx, id, consumerName)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "no broadcast feedback for consumer "+consumerName+" on convention "+id.String())
	case err != nil:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark feedback as handled")
	}
	r.logger.InfoContext(ctx, "broadcast feedback handled by agency",
		"convention_id", id,
		"partner", consumerName,
	)
	return nil
}
