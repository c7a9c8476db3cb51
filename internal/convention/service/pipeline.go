package service

import (
	"context"
	"errors"
	"strings"

	"immersion/internal/convention/models"
	outboxmodels "immersion/internal/outbox/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/email"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/requestcontext"
)

// Each step of a transition is a plain function; the service only chains them.

func requireActor(ctx context.Context) (requestcontext.ActorInfo, error) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok {
		return requestcontext.ActorInfo{}, dErrors.New(dErrors.CodeUnauthorized, "no actor identity on request")
	}
	return actor, nil
}

// authorizeAgency keeps agency staff on their own agency's conventions.
func authorizeAgency(actor requestcontext.ActorInfo, c models.Convention) error {
	switch actor.Role {
	case domain.RoleCounsellor, domain.RoleValidator:
		if actor.AgencyID != c.AgencyID {
			return dErrors.New(dErrors.CodeForbidden,
				actor.Role.String()+" does not belong to the agency of convention "+c.ID.String())
		}
	}
	return nil
}

func triggeredBy(actor requestcontext.ActorInfo) outboxmodels.TriggeredBy {
	return outboxmodels.TriggeredBy{Role: actor.Role, Subject: actor.Subject}
}

// load reads the convention and translates store facts into domain errors.
func (s *Service) load(ctx context.Context, id domain.ConventionID) (models.Convention, error) {
	c, err := s.conventions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Convention{}, dErrors.New(dErrors.CodeNotFound, "convention "+id.String()+" not found")
		}
		return models.Convention{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load convention")
	}
	return c, nil
}

// persist writes the new state and enqueues its event, if any. It must run
// inside the unit of work.
func (s *Service) persist(ctx context.Context, next models.Convention, event *outboxmodels.DomainEvent) error {
	if err := s.conventions.Update(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "convention "+next.ID.String()+" not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update convention")
	}
	return s.enqueue(ctx, event)
}

func (s *Service) enqueue(ctx context.Context, event *outboxmodels.DomainEvent) error {
	if event == nil {
		return nil
	}
	if err := s.outbox.Append(ctx, *event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue event")
	}
	return nil
}

func (s *Service) observe(ctx context.Context, op string, c models.Convention, event *outboxmodels.DomainEvent, err error) {
	if err != nil {
		s.metrics.IncrementRejected(string(dErrors.CodeOf(err)))
		s.logger.InfoContext(ctx, "convention change refused",
			"operation", op,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		return
	}
	s.metrics.IncrementTransition(c.Status.String())
	attrs := []any{
		"operation", op,
		"convention_id", c.ID,
		"status", c.Status,
	}
	if event != nil {
		s.metrics.IncrementEnqueued(event.Topic.String())
		attrs = append(attrs, "event_id", event.ID, "topic", event.Topic)
	}
	s.logger.InfoContext(ctx, "convention changed", attrs...)
}

func normalize(c models.Convention) models.Convention {
	out := c.Clone()
	out.Siret = strings.TrimSpace(out.Siret)
	out.BusinessName = strings.TrimSpace(out.BusinessName)
	for role, sig := range out.Signatories {
		sig.Email = email.Normalize(sig.Email)
		if sig.FirstName == "" && sig.LastName == "" {
			sig.FirstName, sig.LastName = email.DeriveName(sig.Email)
		}
		sig.SignedAt = nil
		out.Signatories[role] = sig
	}
	out.DateValidation = nil
	out.StatusJustification = ""
	return out
}
