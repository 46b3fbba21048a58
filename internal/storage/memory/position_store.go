package memory

import (
	"context"
	"sort"
	"sync"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if an open position
// for the same agent and ticker exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || p.AgentID == "" || p.Ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if p.IsOpen() && s.openLocked(p.AgentID, p.Ticker) != nil {
		return storage.ErrDuplicateKey
	}
	s.data[p.ID] = p.Clone()
	return nil
}

// Update overwrites quantity, prices and close fields.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.data[p.ID]
	if !exists {
		return storage.ErrNotFound
	}
	next := p.Clone()
	next.AgentID = prev.AgentID
	next.Ticker = prev.Ticker
	next.CreatedAt = prev.CreatedAt
	s.data[p.ID] = next
	return nil
}

// GetOpen retrieves the open position for a ticker. Returns ErrNotFound if none.
func (s *PositionStore) GetOpen(_ context.Context, agentID, ticker string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.openLocked(agentID, ticker)
	if p == nil {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// ListOpen retrieves open positions ordered by entry_date DESC.
func (s *PositionStore) ListOpen(_ context.Context, agentID string) ([]*domain.Position, error) {
	return s.list(agentID, true), nil
}

// ListByAgent retrieves all positions ordered by entry_date DESC.
func (s *PositionStore) ListByAgent(_ context.Context, agentID string) ([]*domain.Position, error) {
	return s.list(agentID, false), nil
}

func (s *PositionStore) list(agentID string, openOnly bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.AgentID != agentID || (openOnly && !p.IsOpen()) {
			continue
		}
		result = append(result, p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryDate.Equal(result[j].EntryDate) {
			return result[i].EntryDate.After(result[j].EntryDate)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *PositionStore) openLocked(agentID, ticker string) *domain.Position {
	for _, p := range s.data {
		if p.AgentID == agentID && p.Ticker == ticker && p.IsOpen() {
			return p
		}
	}
	return nil
}

func (s *PositionStore) deleteAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.data {
		if p.AgentID == agentID {
			delete(s.data, id)
		}
	}
}

func (s *PositionStore) row(id string) *domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[id].Clone()
}

// restore puts prev back under id, or removes the row when prev is nil.
func (s *PositionStore) restore(id string, prev *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev == nil {
		delete(s.data, id)
		return
	}
	s.data[id] = prev
}

// capture returns a func that reinstates the agent's current rows.
func (s *PositionStore) capture(agentID string) func() {
	s.mu.RLock()
	saved := make(map[string]*domain.Position)
	for id, p := range s.data {
		if p.AgentID == agentID {
			saved[id] = p.Clone()
		}
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, p := range saved {
			s.data[id] = p
		}
	}
}

var _ storage.PositionStore = (*PositionStore)(nil)
