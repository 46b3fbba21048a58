package memory

import (
	"context"
	"sync"

	"trading-arena/internal/storage"
)

// Repository is an in-memory implementation of storage.Repository.
// InAgentTx serializes callers per agent and undoes the writes made through
// the bound repository if the callback fails.
type Repository struct {
	agents          *AgentStore
	positions       *PositionStore
	trades          *TradeStore
	snapshots       *SnapshotStore
	recommendations *RecommendationStore
	users           *UserStore

	locks   *agentLocks
	held    map[string]struct{} // agents locked by the enclosing InAgentTx
	journal *journal            // nil outside InAgentTx
}

type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *agentLocks) get(agentID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[agentID] = m
	}
	return m
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	r := &Repository{
		agents:          NewAgentStore(),
		positions:       NewPositionStore(),
		trades:          NewTradeStore(),
		snapshots:       NewSnapshotStore(),
		recommendations: NewRecommendationStore(),
		users:           NewUserStore(),
		locks:           &agentLocks{locks: make(map[string]*sync.Mutex)},
	}
	r.agents.onDelete = func(agentID string) {
		r.positions.deleteAgent(agentID)
		r.trades.deleteAgent(agentID)
		r.snapshots.deleteAgent(agentID)
		r.recommendations.deleteAgent(agentID)
	}
	return r
}

func (r *Repository) Agents() storage.AgentStore {
	if r.journal == nil {
		return r.agents
	}
	return txAgentStore{AgentStore: r.agents, repo: r, j: r.journal}
}

func (r *Repository) Positions() storage.PositionStore {
	if r.journal == nil {
		return r.positions
	}
	return txPositionStore{PositionStore: r.positions, j: r.journal}
}

func (r *Repository) Trades() storage.TradeStore {
	if r.journal == nil {
		return r.trades
	}
	return txTradeStore{TradeStore: r.trades, j: r.journal}
}

func (r *Repository) Snapshots() storage.SnapshotStore {
	if r.journal == nil {
		return r.snapshots
	}
	return txSnapshotStore{SnapshotStore: r.snapshots, j: r.journal}
}

func (r *Repository) Recommendations() storage.RecommendationStore {
	if r.journal == nil {
		return r.recommendations
	}
	return txRecommendationStore{RecommendationStore: r.recommendations, j: r.journal}
}

func (r *Repository) Users() storage.UserStore {
	if r.journal == nil {
		return r.users
	}
	return txUserStore{UserStore: r.users, j: r.journal}
}

// InAgentTx runs fn while holding the agent's lock.
func (r *Repository) InAgentTx(ctx context.Context, agentID string, fn func(ctx context.Context, tx storage.Repository) error) error {
	if _, ok := r.held[agentID]; ok {
		return fn(ctx, r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := r.locks.get(agentID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := r.agents.GetByID(ctx, agentID); err != nil {
		return err
	}

	held := make(map[string]struct{}, len(r.held)+1)
	for id := range r.held {
		held[id] = struct{}{}
	}
	held[agentID] = struct{}{}
	bound := *r
	bound.held = held
	bound.journal = &journal{}

	err := fn(ctx, &bound)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		bound.journal.rollback()
		return err
	}
	if r.journal != nil {
		r.journal.absorb(bound.journal)
	}
	return nil
}

var _ storage.Repository = (*Repository)(nil)
