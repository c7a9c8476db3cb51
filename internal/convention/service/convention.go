package service

import (
	"context"
	"errors"

	"immersion/internal/convention/events"
	"immersion/internal/convention/models"
	"immersion/internal/convention/transition"
	outboxmodels "immersion/internal/outbox/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/sentinel"
)

// UpdateStatusRequest asks for a convention to move to Status.
type UpdateStatusRequest struct {
	Status        models.Status
	Justification string
}

// Create submits a new convention on behalf of its beneficiary. The convention
// starts in READY_TO_SIGN and a submission event is enqueued with it.
func (s *Service) Create(ctx context.Context, draft models.Convention) (models.Convention, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return models.Convention{}, err
	}
	if actor.Role != domain.RoleBeneficiary {
		return models.Convention{}, dErrors.New(dErrors.CodeForbidden, actor.Role.String()+" cannot submit a convention")
	}

	now := s.clock.Now()
	c := normalize(draft)
	if c.ID.IsNil() {
		c.ID = domain.ConventionID(s.ids.New())
	}
	c.Status = models.StatusReadyToSign
	c.DateSubmission = now
	c.UpdatedAt = now
	if err := c.Validate(); err != nil {
		return models.Convention{}, err
	}

	event, err := events.ForSubmission(c, triggeredBy(actor), s.clock, s.ids)
	if err != nil {
		return models.Convention{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build submission event")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.conventions.Insert(ctx, c); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "convention "+c.ID.String()+" already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create convention")
		}
		return s.enqueue(ctx, &event)
	})
	s.observe(ctx, "create", c, &event, err)
	if err != nil {
		return models.Convention{}, err
	}
	return c, nil
}

// Get returns a convention by id.
func (s *Service) Get(ctx context.Context, id domain.ConventionID) (models.Convention, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return models.Convention{}, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return models.Convention{}, err
	}
	if err := authorizeAgency(actor, c); err != nil {
		return models.Convention{}, err
	}
	return c, nil
}

// Sign records the actor's signature.
func (s *Service) Sign(ctx context.Context, id domain.ConventionID) (models.Convention, error) {
	return s.apply(ctx, "sign", id, func(current models.Convention, role domain.Role) (models.Convention, error) {
		return transition.Sign(current, role, s.clock.Now())
	})
}

// UpdateStatus moves a convention to req.Status.
func (s *Service) UpdateStatus(ctx context.Context, id domain.ConventionID, req UpdateStatusRequest) (models.Convention, error) {
	if !req.Status.IsValid() {
		return models.Convention{}, dErrors.New(dErrors.CodeBadRequest, "invalid status: "+req.Status.String())
	}
	return s.apply(ctx, "update_status", id, func(current models.Convention, role domain.Role) (models.Convention, error) {
		return transition.Reduce(current, transition.Request{
			Target:        req.Status,
			Role:          role,
			Justification: req.Justification,
		}, s.clock.Now())
	})
}

type reducer func(current models.Convention, role domain.Role) (models.Convention, error)

// apply runs validate, authorize, reduce, persist and enqueue for one change.
func (s *Service) apply(ctx context.Context, op string, id domain.ConventionID, reduce reducer) (models.Convention, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		s.observe(ctx, op, models.Convention{}, nil, err)
		return models.Convention{}, err
	}
	if id.IsNil() {
		return models.Convention{}, dErrors.New(dErrors.CodeBadRequest, "convention id is required")
	}

	var (
		next  models.Convention
		event *outboxmodels.DomainEvent
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeAgency(actor, current); err != nil {
			return err
		}
		next, err = reduce(current, actor.Role)
		if err != nil {
			return err
		}
		event, err = events.ForTransition(next, triggeredBy(actor), s.clock, s.ids)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		return s.persist(ctx, next, event)
	})
	s.observe(ctx, op, next, event, err)
	if err != nil {
		return models.Convention{}, err
	}
	return next, nil
}
