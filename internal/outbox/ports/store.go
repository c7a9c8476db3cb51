// Package ports declares the outbox contracts shared by the dispatcher, the
// polling worker and the quarantine manager.
package ports

import (
	"context"

	"immersion/internal/outbox/models"
	"immersion/pkg/domain"
)

// Store is the single writer of event state. Nothing else mutates events.
//
// Implementations return sentinel.ErrNotFound for unknown ids and
// sentinel.ErrConflict when appending an id twice. Append joins the unit of work
// carried by ctx, if any.
type Store interface {
	Append(ctx context.Context, event models.DomainEvent) error
	Get(ctx context.Context, id domain.EventID) (models.DomainEvent, error)
	// ListUnpublished returns never-published, non-quarantined events, oldest first.
	ListUnpublished(ctx context.Context, limit int) ([]models.DomainEvent, error)
	// RecordPublication appends pub and returns the updated event. The event
	// becomes published once every subscriber in required has an ok publication.
	RecordPublication(ctx context.Context, id domain.EventID, pub models.Publication, required []models.SubscriberID) (models.DomainEvent, error)
	Quarantine(ctx context.Context, id domain.EventID, reason string) error
	// Release clears the quarantine flag and returns a failed event to
	// never-published so the next polling pass dispatches it again.
	Release(ctx context.Context, id domain.EventID) error
	ListQuarantined(ctx context.Context) ([]models.DomainEvent, error)
	ListFailed(ctx context.Context, limit int) ([]models.DomainEvent, error)
	// Requeue moves a failed event back to never-published. It returns
	// sentinel.ErrInvalidState for published events.
	Requeue(ctx context.Context, id domain.EventID) error
}
