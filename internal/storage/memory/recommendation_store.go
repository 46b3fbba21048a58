package memory

import (
	"context"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// RecommendationStore is an in-memory implementation of storage.RecommendationStore.
type RecommendationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Recommendation // keyed by id
}

// NewRecommendationStore creates a new in-memory recommendation store.
func NewRecommendationStore() *RecommendationStore {
	return &RecommendationStore{
		data: make(map[string]*domain.Recommendation),
	}
}

// Insert adds a new recommendation. Returns ErrDuplicateKey if id exists.
func (s *RecommendationStore) Insert(_ context.Context, r *domain.Recommendation) error {
	if r == nil || r.ID == "" || r.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// GetActive retrieves the newest unexecuted, unexpired recommendation.
func (s *RecommendationStore) GetActive(_ context.Context, agentID string, now time.Time) (*domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Recommendation
	for _, r := range s.data {
		if r.AgentID != agentID || !r.IsActive(now) {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best.Clone(), nil
}

// MarkExecuted flags every unexecuted recommendation of the agent as executed.
func (s *RecommendationStore) MarkExecuted(_ context.Context, agentID string, at time.Time) (int, error) {
	return len(s.markExecuted(agentID, at)), nil
}

func (s *RecommendationStore) markExecuted(agentID string, at time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.data {
		if r.AgentID == agentID && !r.IsExecuted {
			r.IsExecuted = true
			t := at
			r.ExecutedAt = &t
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *RecommendationStore) unmark(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.data[id]; ok {
			r.IsExecuted = false
			r.ExecutedAt = nil
		}
	}
}

func (s *RecommendationStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

func (s *RecommendationStore) deleteAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.data {
		if r.AgentID == agentID {
			delete(s.data, id)
		}
	}
}

// capture returns a func that reinstates the agent's current rows.
func (s *RecommendationStore) capture(agentID string) func() {
	s.mu.RLock()
	saved := make(map[string]*domain.Recommendation)
	for id, r := range s.data {
		if r.AgentID == agentID {
			saved[id] = r.Clone()
		}
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, r := range saved {
			s.data[id] = r
		}
	}
}

var _ storage.RecommendationStore = (*RecommendationStore)(nil)
