package postgres

import (
	"context"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// AgentStore implements storage.AgentStore using PostgreSQL.
type AgentStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.AgentStore = (*AgentStore)(nil)

const agentColumns = `
	id, user_id, name, description, llm_model, system_prompt, watchlist,
	stop_loss_pct, max_position_pct, max_trades_per_day,
	is_public, status,
	starting_capital, cash_balance, current_value, total_return_pct,
	total_trades, winning_trades, win_rate, total_api_cost,
	auto_execute, auto_interval, next_auto_analysis_at, last_analysis_at,
	created_at, updated_at`

// Insert adds a new agent. Returns ErrDuplicateKey if id exists.
func (s *AgentStore) Insert(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (` + agentColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24,
			$25, $26
		)
	`

	_, err := s.q.Exec(ctx, query,
		a.ID, a.UserID, a.Name, a.Description, a.LLMModel, a.SystemPrompt, watchlistOf(a),
		a.Risk.StopLossPct, a.Risk.MaxPositionPct, a.Risk.MaxTradesPerDay,
		a.IsPublic, string(a.Status),
		a.StartingCapital, a.CashBalance, a.CurrentValue, a.TotalReturnPct,
		a.TotalTrades, a.WinningTrades, a.WinRate, a.TotalAPICost,
		a.AutoExecute, string(a.AutoInterval), a.NextAutoAnalysisAt, a.LastAnalysisAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetByID retrieves an agent. Returns ErrNotFound if not exists.
func (s *AgentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`

	a, err := scanAgent(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// ListByUser retrieves all agents owned by a user, newest first.
func (s *AgentStore) ListByUser(ctx context.Context, userID string) ([]*domain.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
	`
	return s.list(ctx, "list agents by user", query, userID)
}

// ListPublic retrieves public, active agents ordered by total return DESC.
func (s *AgentStore) ListPublic(ctx context.Context) ([]*domain.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE is_public AND status = 'active'
		ORDER BY total_return_pct DESC, id ASC
	`
	return s.list(ctx, "list public agents", query)
}

// ListDueForAutoTrade retrieves active auto-executing agents due at now.
// An agent with no scheduled time is due immediately.
func (s *AgentStore) ListDueForAutoTrade(ctx context.Context, now time.Time) ([]*domain.Agent, error) {
	query := `
		SELECT ` + agentColumns + `
		FROM agents
		WHERE auto_execute AND status = 'active'
		  AND (next_auto_analysis_at IS NULL OR next_auto_analysis_at <= $1)
		ORDER BY id ASC
	`
	return s.list(ctx, "list agents due for auto trade", query, now)
}

// Update overwrites the mutable fields of an agent.
func (s *AgentStore) Update(ctx context.Context, a *domain.Agent) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE agents SET
			name = $2, description = $3, llm_model = $4, system_prompt = $5, watchlist = $6,
			stop_loss_pct = $7, max_position_pct = $8, max_trades_per_day = $9,
			is_public = $10, status = $11,
			starting_capital = $12, cash_balance = $13, current_value = $14, total_return_pct = $15,
			total_trades = $16, winning_trades = $17, win_rate = $18, total_api_cost = $19,
			auto_execute = $20, auto_interval = $21, next_auto_analysis_at = $22, last_analysis_at = $23,
			updated_at = $24
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		a.ID, a.Name, a.Description, a.LLMModel, a.SystemPrompt, watchlistOf(a),
		a.Risk.StopLossPct, a.Risk.MaxPositionPct, a.Risk.MaxTradesPerDay,
		a.IsPublic, string(a.Status),
		a.StartingCapital, a.CashBalance, a.CurrentValue, a.TotalReturnPct,
		a.TotalTrades, a.WinningTrades, a.WinRate, a.TotalAPICost,
		a.AutoExecute, string(a.AutoInterval), a.NextAutoAnalysisAt, a.LastAnalysisAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an agent. Positions, trades, snapshots and
// recommendations go with it through ON DELETE CASCADE.
func (s *AgentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *AgentStore) list(ctx context.Context, op, query string, args ...any) ([]*domain.Agent, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return result, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		a        domain.Agent
		status   string
		interval string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &a.Description, &a.LLMModel, &a.SystemPrompt, &a.Watchlist,
		&a.Risk.StopLossPct, &a.Risk.MaxPositionPct, &a.Risk.MaxTradesPerDay,
		&a.IsPublic, &status,
		&a.StartingCapital, &a.CashBalance, &a.CurrentValue, &a.TotalReturnPct,
		&a.TotalTrades, &a.WinningTrades, &a.WinRate, &a.TotalAPICost,
		&a.AutoExecute, &interval, &a.NextAutoAnalysisAt, &a.LastAnalysisAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AgentStatus(status)
	a.AutoInterval = domain.AutoInterval(interval)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.NextAutoAnalysisAt = utcPtr(a.NextAutoAnalysisAt)
	a.LastAnalysisAt = utcPtr(a.LastAnalysisAt)
	return &a, nil
}

func watchlistOf(a *domain.Agent) []string {
	if a.Watchlist == nil {
		return []string{}
	}
	return a.Watchlist
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
