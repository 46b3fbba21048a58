package memory

import (
	"context"
	"sync"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// journal collects one undo step per write made through a bound repository.
// Rollback replays them newest first, so rows written by other callers
// during the transaction are left alone.
type journal struct {
	mu   sync.Mutex
	undo []func()
}

func (j *journal) record(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	j.mu.Lock()
	steps := j.undo
	j.undo = nil
	j.mu.Unlock()

	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// absorb moves the steps of a committed inner transaction into j.
func (j *journal) absorb(inner *journal) {
	inner.mu.Lock()
	steps := inner.undo
	inner.undo = nil
	inner.mu.Unlock()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, steps...)
}

type txAgentStore struct {
	*AgentStore
	repo *Repository
	j    *journal
}

func (s txAgentStore) Insert(ctx context.Context, a *domain.Agent) error {
	if err := s.AgentStore.Insert(ctx, a); err != nil {
		return err
	}
	id := a.ID
	s.j.record(func() { s.restore(id, nil) })
	return nil
}

func (s txAgentStore) Update(ctx context.Context, a *domain.Agent) error {
	prev := s.row(a.ID)
	if err := s.AgentStore.Update(ctx, a); err != nil {
		return err
	}
	id := a.ID
	s.j.record(func() { s.restore(id, prev) })
	return nil
}

func (s txAgentStore) Delete(ctx context.Context, id string) error {
	prev := s.row(id)
	children := []func(){
		s.repo.positions.capture(id),
		s.repo.trades.capture(id),
		s.repo.snapshots.capture(id),
		s.repo.recommendations.capture(id),
	}
	if err := s.AgentStore.Delete(ctx, id); err != nil {
		return err
	}
	s.j.record(func() {
		s.restore(id, prev)
		for _, reinstate := range children {
			reinstate()
		}
	})
	return nil
}

type txPositionStore struct {
	*PositionStore
	j *journal
}

func (s txPositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if err := s.PositionStore.Insert(ctx, p); err != nil {
		return err
	}
	id := p.ID
	s.j.record(func() { s.restore(id, nil) })
	return nil
}

func (s txPositionStore) Update(ctx context.Context, p *domain.Position) error {
	prev := s.row(p.ID)
	if err := s.PositionStore.Update(ctx, p); err != nil {
		return err
	}
	id := p.ID
	s.j.record(func() { s.restore(id, prev) })
	return nil
}

type txTradeStore struct {
	*TradeStore
	j *journal
}

func (s txTradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if err := s.TradeStore.Insert(ctx, t); err != nil {
		return err
	}
	id := t.ID
	s.j.record(func() { s.remove(id) })
	return nil
}

type txSnapshotStore struct {
	*SnapshotStore
	j *journal
}

func (s txSnapshotStore) Insert(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	if err := s.SnapshotStore.Insert(ctx, snap); err != nil {
		return err
	}
	agentID, id := snap.AgentID, snap.ID
	s.j.record(func() { s.remove(agentID, id) })
	return nil
}

type txRecommendationStore struct {
	*RecommendationStore
	j *journal
}

func (s txRecommendationStore) Insert(ctx context.Context, r *domain.Recommendation) error {
	if err := s.RecommendationStore.Insert(ctx, r); err != nil {
		return err
	}
	id := r.ID
	s.j.record(func() { s.remove(id) })
	return nil
}

func (s txRecommendationStore) MarkExecuted(_ context.Context, agentID string, at time.Time) (int, error) {
	ids := s.markExecuted(agentID, at)
	if len(ids) > 0 {
		s.j.record(func() { s.unmark(ids) })
	}
	return len(ids), nil
}

// txUserStore undoes credit changes as deltas so concurrent consumption by
// other callers survives a rollback.
type txUserStore struct {
	*UserStore
	j *journal
}

func (s txUserStore) Insert(ctx context.Context, u *domain.User) error {
	if err := s.UserStore.Insert(ctx, u); err != nil {
		return err
	}
	id := u.ID
	s.j.record(func() { s.remove(id) })
	return nil
}

func (s txUserStore) ConsumeCredit(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.UserStore.ConsumeCredit(ctx, id)
	if err != nil {
		return nil, err
	}
	s.j.record(func() { s.adjust(id, 1, -1) })
	return u, nil
}

func (s txUserStore) RefundCredit(ctx context.Context, id string) error {
	prev := s.row(id)
	if err := s.UserStore.RefundCredit(ctx, id); err != nil {
		return err
	}
	analyses := 0
	if prev != nil && prev.TotalAnalyses > 0 {
		analyses = 1
	}
	s.j.record(func() { s.adjust(id, -1, analyses) })
	return nil
}

func (s txUserStore) ResetCredits(ctx context.Context, id string, credits int, resetAt time.Time) error {
	prev := s.row(id)
	if err := s.UserStore.ResetCredits(ctx, id, credits, resetAt); err != nil {
		return err
	}
	s.j.record(func() { s.setCredits(id, prev.CreditsRemaining, prev.CreditsResetAt) })
	return nil
}

var (
	_ storage.AgentStore          = txAgentStore{}
	_ storage.PositionStore       = txPositionStore{}
	_ storage.TradeStore          = txTradeStore{}
	_ storage.SnapshotStore       = txSnapshotStore{}
	_ storage.RecommendationStore = txRecommendationStore{}
	_ storage.UserStore           = txUserStore{}
)
