package postgres

import (
	"context"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, agent_id, action, ticker, quantity, price, total_value,
	confidence, reasoning, news_summary,
	realized_pnl, is_profitable, api_cost, request_key, created_at`

// Insert adds a new trade. Returns ErrDuplicateKey if id or a non-empty
// request key already exists for the agent.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, NULLIF($14, ''), $15
		)
	`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.AgentID, string(t.Action), t.Ticker, t.Quantity, t.Price, t.TotalValue,
		t.Confidence, t.Reasoning, t.NewsSummary,
		t.RealizedPnL, t.IsProfitable, t.APICost, t.RequestKey, t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByRequestKey retrieves the trade recorded under an idempotency key.
func (s *TradeStore) GetByRequestKey(ctx context.Context, agentID, key string) (*domain.Trade, error) {
	if key == "" {
		return nil, storage.ErrNotFound
	}
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE agent_id = $1 AND request_key = $2
	`

	t, err := scanTrade(s.q.QueryRow(ctx, query, agentID, key))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by request key: %w", err)
	}
	return t, nil
}

// ListByAgent retrieves the most recent trades, newest first.
// A limit <= 0 returns all trades.
func (s *TradeStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return result, nil
}

// CountSince counts trades of any action created at or after since.
func (s *TradeStore) CountSince(ctx context.Context, agentID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM trades
		WHERE agent_id = $1 AND created_at >= $2
	`

	var count int
	if err := s.q.QueryRow(ctx, query, agentID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		t          domain.Trade
		action     string
		requestKey *string
	)
	err := row.Scan(
		&t.ID, &t.AgentID, &action, &t.Ticker, &t.Quantity, &t.Price, &t.TotalValue,
		&t.Confidence, &t.Reasoning, &t.NewsSummary,
		&t.RealizedPnL, &t.IsProfitable, &t.APICost, &requestKey, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Action = domain.Action(action)
	if requestKey != nil {
		t.RequestKey = *requestKey
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
