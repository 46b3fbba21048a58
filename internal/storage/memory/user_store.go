package memory

import (
	"context"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User // keyed by id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		data: make(map[string]*domain.User),
	}
}

// Insert adds a new user. Returns ErrDuplicateKey if id or token hash exists.
func (s *UserStore) Insert(_ context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ID == u.ID || (u.APITokenHash != "" && existing.APITokenHash == u.APITokenHash) {
			return storage.ErrDuplicateKey
		}
	}
	copy := *u
	s.data[u.ID] = &copy
	return nil
}

// GetByID retrieves a user. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

// GetByTokenHash retrieves the user owning an API token hash.
func (s *UserStore) GetByTokenHash(_ context.Context, hash string) (*domain.User, error) {
	if hash == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.data {
		if u.APITokenHash == hash {
			copy := *u
			return &copy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ConsumeCredit decrements credits_remaining if it is positive.
func (s *UserStore) ConsumeCredit(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if u.CreditsRemaining <= 0 {
		return nil, storage.ErrConflict
	}
	u.CreditsRemaining--
	u.TotalAnalyses++
	copy := *u
	return &copy, nil
}

// RefundCredit reverses one ConsumeCredit.
func (s *UserStore) RefundCredit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	u.CreditsRemaining++
	if u.TotalAnalyses > 0 {
		u.TotalAnalyses--
	}
	return nil
}

// ResetCredits sets the allowance and the next reset time.
func (s *UserStore) ResetCredits(_ context.Context, id string, credits int, resetAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	u.CreditsRemaining = credits
	u.CreditsResetAt = resetAt
	return nil
}

func (s *UserStore) row(id string) *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data[id]
	if !ok {
		return nil
	}
	copy := *u
	return &copy
}

func (s *UserStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

// adjust shifts the credit counters by the given deltas.
func (s *UserStore) adjust(id string, credits, analyses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.data[id]; ok {
		u.CreditsRemaining += credits
		u.TotalAnalyses += analyses
	}
}

func (s *UserStore) setCredits(id string, credits int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.data[id]; ok {
		u.CreditsRemaining = credits
		u.CreditsResetAt = resetAt
	}
}

var _ storage.UserStore = (*UserStore)(nil)
