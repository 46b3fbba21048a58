package storage

import (
	"context"
	"time"

	"trading-arena/internal/domain"
)

// AgentStore provides access to agents storage.
// Mutations must run inside Repository.InAgentTx for the agent.
type AgentStore interface {
	// Insert adds a new agent. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, a *domain.Agent) error

	// GetByID retrieves an agent. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Agent, error)

	// ListByUser retrieves all agents owned by a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Agent, error)

	// ListPublic retrieves public, active agents ordered by total return DESC.
	ListPublic(ctx context.Context) ([]*domain.Agent, error)

	// ListDueForAutoTrade retrieves active auto-executing agents whose next
	// analysis time is at or before now.
	ListDueForAutoTrade(ctx context.Context, now time.Time) ([]*domain.Agent, error)

	// Update overwrites the mutable fields of an agent. Returns ErrNotFound if not exists.
	Update(ctx context.Context, a *domain.Agent) error

	// Delete removes an agent and everything it owns. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if an open
	// position for (agent_id, ticker) already exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update overwrites quantity, prices and close fields. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Position) error

	// GetOpen retrieves the open position for a ticker. Returns ErrNotFound if none.
	GetOpen(ctx context.Context, agentID, ticker string) (*domain.Position, error)

	// ListOpen retrieves open positions ordered by entry_date DESC.
	ListOpen(ctx context.Context, agentID string) ([]*domain.Position, error)

	// ListByAgent retrieves all positions, open and closed, ordered by entry_date DESC.
	ListByAgent(ctx context.Context, agentID string) ([]*domain.Position, error)
}

// TradeStore provides access to trades storage. Trades are append-only.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if id or a
	// non-empty request key already exists for the agent.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByRequestKey retrieves the trade recorded under an idempotency key.
	// Returns ErrNotFound if not exists.
	GetByRequestKey(ctx context.Context, agentID, key string) (*domain.Trade, error)

	// ListByAgent retrieves the most recent trades, newest first.
	// A limit <= 0 returns all trades.
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.Trade, error)

	// CountSince counts trades of any action created at or after since.
	CountSince(ctx context.Context, agentID string, since time.Time) (int, error)
}

// SnapshotStore provides access to portfolio_snapshots storage. Snapshots are append-only.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, s *domain.PortfolioSnapshot) error

	// ListSince retrieves snapshots created at or after since, ordered by created_at ASC.
	ListSince(ctx context.Context, agentID string, since time.Time) ([]*domain.PortfolioSnapshot, error)

	// Latest retrieves the newest snapshot. Returns ErrNotFound if none.
	Latest(ctx context.Context, agentID string) (*domain.PortfolioSnapshot, error)
}

// RecommendationStore provides access to agent_recommendations storage.
type RecommendationStore interface {
	// Insert adds a new recommendation. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, r *domain.Recommendation) error

	// GetActive retrieves the newest unexecuted recommendation whose
	// expires_at is after now. Returns ErrNotFound if none.
	GetActive(ctx context.Context, agentID string, now time.Time) (*domain.Recommendation, error)

	// MarkExecuted flags every unexecuted recommendation of the agent as
	// executed at the given time and returns how many were changed.
	MarkExecuted(ctx context.Context, agentID string, at time.Time) (int, error)
}

// UserStore provides access to users storage.
type UserStore interface {
	// Insert adds a new user. Returns ErrDuplicateKey if id or token hash exists.
	Insert(ctx context.Context, u *domain.User) error

	// GetByID retrieves a user. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByTokenHash retrieves the user owning an API token hash. Returns ErrNotFound if none.
	GetByTokenHash(ctx context.Context, hash string) (*domain.User, error)

	// ConsumeCredit decrements credits_remaining if it is positive, counts
	// the analysis and returns the updated user. Returns ErrConflict when no
	// credits remain.
	ConsumeCredit(ctx context.Context, id string) (*domain.User, error)

	// RefundCredit reverses one ConsumeCredit.
	RefundCredit(ctx context.Context, id string) error

	// ResetCredits sets the allowance and the next reset time.
	ResetCredits(ctx context.Context, id string, credits int, resetAt time.Time) error
}

// PerformanceStore provides access to the analytical equity curve.
type PerformanceStore interface {
	// Record appends one snapshot sample.
	Record(ctx context.Context, s *domain.PortfolioSnapshot) error

	// DailyCurve aggregates samples per UTC day from since, ordered by day ASC.
	DailyCurve(ctx context.Context, agentID string, since time.Time) ([]*domain.PerformancePoint, error)
}

// Repository groups the relational stores and provides the per-agent
// unit of work that serializes portfolio mutations.
type Repository interface {
	Agents() AgentStore
	Positions() PositionStore
	Trades() TradeStore
	Snapshots() SnapshotStore
	Recommendations() RecommendationStore
	Users() UserStore

	// InAgentTx runs fn with exclusive access to the agent's ledger state.
	// The Repository passed to fn is bound to the transaction; all of fn's
	// writes commit together or not at all. Returns ErrNotFound if the
	// agent does not exist. Calling InAgentTx on a bound Repository joins
	// the open transaction.
	InAgentTx(ctx context.Context, agentID string, fn func(ctx context.Context, tx Repository) error) error
}
