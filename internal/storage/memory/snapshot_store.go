package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PortfolioSnapshot // keyed by agent_id, ordered by created_at
	ids  map[string]struct{}
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string][]*domain.PortfolioSnapshot),
		ids:  make(map[string]struct{}),
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.PortfolioSnapshot) error {
	if snap == nil || snap.ID == "" || snap.AgentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.ids[snap.ID] = struct{}{}

	list := append(s.data[snap.AgentID], cloneSnapshot(snap))
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	s.data[snap.AgentID] = list
	return nil
}

// ListSince retrieves snapshots created at or after since, ordered by created_at ASC.
func (s *SnapshotStore) ListSince(_ context.Context, agentID string, since time.Time) ([]*domain.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PortfolioSnapshot
	for _, snap := range s.data[agentID] {
		if !snap.CreatedAt.Before(since) {
			result = append(result, cloneSnapshot(snap))
		}
	}
	return result, nil
}

// Latest retrieves the newest snapshot. Returns ErrNotFound if none.
func (s *SnapshotStore) Latest(_ context.Context, agentID string) (*domain.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.data[agentID]
	if len(list) == 0 {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(list[len(list)-1]), nil
}

func (s *SnapshotStore) deleteAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range s.data[agentID] {
		delete(s.ids, snap.ID)
	}
	delete(s.data, agentID)
}

func (s *SnapshotStore) remove(agentID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.data[agentID]
	for i, snap := range list {
		if snap.ID == id {
			s.data[agentID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.data[agentID]) == 0 {
		delete(s.data, agentID)
	}
	delete(s.ids, id)
}

// capture returns a func that reinstates the agent's current rows.
func (s *SnapshotStore) capture(agentID string) func() {
	s.mu.RLock()
	saved := make([]*domain.PortfolioSnapshot, 0, len(s.data[agentID]))
	for _, snap := range s.data[agentID] {
		saved = append(saved, cloneSnapshot(snap))
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.data[agentID]
		for _, snap := range saved {
			if _, exists := s.ids[snap.ID]; exists {
				continue
			}
			s.ids[snap.ID] = struct{}{}
			list = append(list, snap)
		}
		if len(list) == 0 {
			return
		}
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
		s.data[agentID] = list
	}
}

func cloneSnapshot(snap *domain.PortfolioSnapshot) *domain.PortfolioSnapshot {
	c := *snap
	c.Positions = append([]domain.SnapshotPosition(nil), snap.Positions...)
	return &c
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
