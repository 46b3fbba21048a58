package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by id
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if id or request key exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" || t.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if t.RequestKey != "" && s.byKeyLocked(t.AgentID, t.RequestKey) != nil {
		return storage.ErrDuplicateKey
	}
	s.data[t.ID] = t.Clone()
	return nil
}

// GetByRequestKey retrieves the trade recorded under an idempotency key.
func (s *TradeStore) GetByRequestKey(_ context.Context, agentID, key string) (*domain.Trade, error) {
	if key == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.byKeyLocked(agentID, key)
	if t == nil {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// ListByAgent retrieves the most recent trades, newest first.
func (s *TradeStore) ListByAgent(_ context.Context, agentID string, limit int) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range s.data {
		if t.AgentID == agentID {
			result = append(result, t.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountSince counts trades of any action created at or after since.
func (s *TradeStore) CountSince(_ context.Context, agentID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, t := range s.data {
		if t.AgentID == agentID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *TradeStore) byKeyLocked(agentID, key string) *domain.Trade {
	for _, t := range s.data {
		if t.AgentID == agentID && t.RequestKey == key {
			return t
		}
	}
	return nil
}

func (s *TradeStore) deleteAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.data {
		if t.AgentID == agentID {
			delete(s.data, id)
		}
	}
}

// capture returns a func that reinstates the agent's current rows.
func (s *TradeStore) capture(agentID string) func() {
	s.mu.RLock()
	saved := make(map[string]*domain.Trade)
	for id, t := range s.data {
		if t.AgentID == agentID {
			saved[id] = t.Clone()
		}
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, t := range saved {
			s.data[id] = t
		}
	}
}

func (s *TradeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

var _ storage.TradeStore = (*TradeStore)(nil)
