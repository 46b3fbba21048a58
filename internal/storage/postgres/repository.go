package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trading-arena/internal/observability"
	"trading-arena/internal/storage"
)

// Repository implements storage.Repository on PostgreSQL. Outside a
// transaction the stores run against the pool; inside InAgentTx they are
// bound to the transaction.
type Repository struct {
	pool *Pool
	q    querier
	tx   pgx.Tx
	held map[string]struct{} // agents locked by the enclosing transaction
}

// NewRepository creates a repository backed by pool.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool, q: observed{q: pool}}
}

func (r *Repository) Agents() storage.AgentStore                   { return &AgentStore{q: r.q} }
func (r *Repository) Positions() storage.PositionStore             { return &PositionStore{q: r.q} }
func (r *Repository) Trades() storage.TradeStore                   { return &TradeStore{q: r.q} }
func (r *Repository) Snapshots() storage.SnapshotStore             { return &SnapshotStore{q: r.q} }
func (r *Repository) Recommendations() storage.RecommendationStore { return &RecommendationStore{q: r.q} }
func (r *Repository) Users() storage.UserStore                     { return &UserStore{q: r.q} }

const lockAgentQuery = `SELECT id FROM agents WHERE id = $1 FOR UPDATE`

// InAgentTx runs fn in a transaction holding the agent's row lock.
// Concurrent callers for the same agent queue on the lock.
func (r *Repository) InAgentTx(ctx context.Context, agentID string, fn func(ctx context.Context, tx storage.Repository) error) error {
	if r.tx != nil {
		return r.joinTx(ctx, agentID, fn)
	}

	start := time.Now()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bound := &Repository{
		pool: r.pool,
		q:    observed{q: tx},
		tx:   tx,
		held: map[string]struct{}{},
	}
	if err := bound.lock(ctx, agentID); err != nil {
		return err
	}

	if err := fn(ctx, bound); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		observability.RecordDBQuery("postgres", "commit", time.Since(start).Seconds(), err)
		return fmt.Errorf("commit tx: %w", err)
	}
	observability.RecordDBQuery("postgres", "commit", time.Since(start).Seconds(), nil)
	return nil
}

// joinTx runs fn inside the already open transaction, locking agentID
// first if this transaction does not hold it yet.
func (r *Repository) joinTx(ctx context.Context, agentID string, fn func(ctx context.Context, tx storage.Repository) error) error {
	if _, ok := r.held[agentID]; !ok {
		if err := r.lock(ctx, agentID); err != nil {
			return err
		}
	}
	return fn(ctx, r)
}

func (r *Repository) lock(ctx context.Context, agentID string) error {
	var id string
	err := r.q.QueryRow(ctx, lockAgentQuery, agentID).Scan(&id)
	if isNotFoundError(err) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock agent: %w", err)
	}
	r.held[agentID] = struct{}{}
	return nil
}

var _ storage.Repository = (*Repository)(nil)
