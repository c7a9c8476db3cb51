package store

import (
	"context"
	"slices"
	"sync"

	"immersion/internal/feedback/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
)

// InMemoryStore keeps every attempt, in insertion order, per convention.
type InMemoryStore struct {
	mu        sync.RWMutex
	feedbacks map[domain.ConventionID][]models.BroadcastFeedback
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{feedbacks: make(map[domain.ConventionID][]models.BroadcastFeedback)}
}

func (s *InMemoryStore) Save(_ context.Context, f models.BroadcastFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbacks[f.ConventionID] = append(s.feedbacks[f.ConventionID], f)
	return nil
}

func (s *InMemoryStore) ListByConvention(_ context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.feedbacks[id]), nil
}

// LatestByConsumer returns the most recent attempt for each consumer, ordered
// by consumer name.
func (s *InMemoryStore) LatestByConsumer(_ context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]models.BroadcastFeedback)
	for _, f := range s.feedbacks[id] {
		if prev, ok := latest[f.ConsumerName]; !ok || !f.OccurredAt.Before(prev.OccurredAt) {
			latest[f.ConsumerName] = f
		}
	}
	out := make([]models.BroadcastFeedback, 0, len(latest))
	for _, f := range latest {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b models.BroadcastFeedback) int {
		if a.ConsumerName < b.ConsumerName {
			return -1
		}
		if a.ConsumerName > b.ConsumerName {
			return 1
		}
		return 0
	})
	return out, nil
}

// MarkHandledByAgency flags every attempt for that consumer.
func (s *InMemoryStore) MarkHandledByAgency(_ context.Context, id domain.ConventionID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i, f := range s.feedbacks[id] {
		if f.ConsumerName == consumerName {
			s.feedbacks[id][i].HandledByAgency = true
			found = true
		}
	}
	if !found {
		return sentinel.ErrNotFound
	}
	return nil
}
