package store

import (
	"context"
	"sync"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/platform/tx"
)

// InMemoryStore keeps conventions in memory. Stored values are cloned on the way
// in and out so callers never share signatory maps with the store.
type InMemoryStore struct {
	mu          sync.RWMutex
	conventions map[domain.ConventionID]models.Convention
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{conventions: make(map[domain.ConventionID]models.Convention)}
}

func (s *InMemoryStore) GetByID(_ context.Context, id domain.ConventionID) (models.Convention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conventions[id]
	if !ok {
		return models.Convention{}, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) Insert(ctx context.Context, c models.Convention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conventions[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.conventions[c.ID] = c.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.conventions, c.ID)
	})
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, c models.Convention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.conventions[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.conventions[c.ID] = c.Clone()
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.conventions[c.ID] = previous
	})
	return nil
}
