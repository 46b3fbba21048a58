package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// AgentStore is an in-memory implementation of storage.AgentStore.
type AgentStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.Agent // keyed by id
	onDelete func(agentID string)
}

// NewAgentStore creates a new in-memory agent store.
func NewAgentStore() *AgentStore {
	return &AgentStore{
		data: make(map[string]*domain.Agent),
	}
}

// Insert adds a new agent. Returns ErrDuplicateKey if id exists.
func (s *AgentStore) Insert(_ context.Context, a *domain.Agent) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[a.ID] = a.Clone()
	return nil
}

// GetByID retrieves an agent. Returns ErrNotFound if not exists.
func (s *AgentStore) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// ListByUser retrieves all agents owned by a user, newest first.
func (s *AgentStore) ListByUser(_ context.Context, userID string) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Agent
	for _, a := range s.data {
		if a.UserID == userID {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListPublic retrieves public, active agents ordered by total return DESC.
func (s *AgentStore) ListPublic(_ context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Agent
	for _, a := range s.data {
		if a.IsPublic && a.Status == domain.AgentStatusActive {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalReturnPct != result[j].TotalReturnPct {
			return result[i].TotalReturnPct > result[j].TotalReturnPct
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// ListDueForAutoTrade retrieves active auto-executing agents due at now.
func (s *AgentStore) ListDueForAutoTrade(_ context.Context, now time.Time) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Agent
	for _, a := range s.data {
		if !a.AutoExecute || a.Status != domain.AgentStatusActive {
			continue
		}
		if a.NextAutoAnalysisAt != nil && a.NextAutoAnalysisAt.After(now) {
			continue
		}
		result = append(result, a.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Update overwrites the mutable fields of an agent.
func (s *AgentStore) Update(_ context.Context, a *domain.Agent) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.data[a.ID]
	if !exists {
		return storage.ErrNotFound
	}
	next := a.Clone()
	next.UserID = prev.UserID
	next.CreatedAt = prev.CreatedAt
	s.data[a.ID] = next
	return nil
}

// Delete removes an agent and cascades to the rest of the repository.
func (s *AgentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, exists := s.data[id]; !exists {
		s.mu.Unlock()
		return storage.ErrNotFound
	}
	delete(s.data, id)
	onDelete := s.onDelete
	s.mu.Unlock()

	if onDelete != nil {
		onDelete(id)
	}
	return nil
}

func (s *AgentStore) row(id string) *domain.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[id].Clone()
}

// restore puts prev back under id, or removes the row when prev is nil.
func (s *AgentStore) restore(id string, prev *domain.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev == nil {
		delete(s.data, id)
		return
	}
	s.data[id] = prev
}

var _ storage.AgentStore = (*AgentStore)(nil)
