package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"immersion/internal/outbox/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/platform/tx"
)

// InMemoryStore keeps events in process memory. Events never leave the store.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[domain.EventID]models.DomainEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{events: make(map[domain.EventID]models.DomainEvent)}
}

func (s *InMemoryStore) Append(ctx context.Context, event models.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return sentinel.ErrConflict
	}
	event.Status = models.EventStatusNeverPublished
	event.WasQuarantined = false
	s.events[event.ID] = event
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.events, event.ID)
	})
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.EventID) (models.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return models.DomainEvent{}, sentinel.ErrNotFound
	}
	return event, nil
}

func (s *InMemoryStore) ListUnpublished(_ context.Context, limit int) ([]models.DomainEvent, error) {
	return s.list(limit, func(e models.DomainEvent) bool {
		return e.Status == models.EventStatusNeverPublished && !e.WasQuarantined
	}), nil
}

func (s *InMemoryStore) ListQuarantined(_ context.Context) ([]models.DomainEvent, error) {
	return s.list(0, func(e models.DomainEvent) bool { return e.WasQuarantined }), nil
}

func (s *InMemoryStore) ListFailed(_ context.Context, limit int) ([]models.DomainEvent, error) {
	return s.list(limit, func(e models.DomainEvent) bool { return e.Status == models.EventStatusFailed }), nil
}

func (s *InMemoryStore) RecordPublication(_ context.Context, id domain.EventID, pub models.Publication, required []models.SubscriberID) (models.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return models.DomainEvent{}, sentinel.ErrNotFound
	}
	event = event.WithPublication(pub, required)
	s.events[id] = event
	return event, nil
}

func (s *InMemoryStore) Quarantine(_ context.Context, id domain.EventID, reason string) error {
	return s.update(id, func(e *models.DomainEvent) error {
		e.WasQuarantined = true
		e.QuarantineReason = reason
		return nil
	})
}

func (s *InMemoryStore) Release(_ context.Context, id domain.EventID) error {
	return s.update(id, func(e *models.DomainEvent) error {
		e.WasQuarantined = false
		e.QuarantineReason = ""
		if e.Status == models.EventStatusFailed {
			e.Status = models.EventStatusNeverPublished
		}
		return nil
	})
}

func (s *InMemoryStore) Requeue(_ context.Context, id domain.EventID) error {
	return s.update(id, func(e *models.DomainEvent) error {
		switch e.Status {
		case models.EventStatusPublished:
			return sentinel.ErrInvalidState
		case models.EventStatusFailed:
			e.Status = models.EventStatusNeverPublished
		}
		return nil
	})
}

func (s *InMemoryStore) update(id domain.EventID, fn func(*models.DomainEvent) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := fn(&event); err != nil {
		return err
	}
	s.events[id] = event
	return nil
}

func (s *InMemoryStore) list(limit int, keep func(models.DomainEvent) bool) []models.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DomainEvent
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b models.DomainEvent) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
