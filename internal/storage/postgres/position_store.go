package postgres

import (
	"context"
	"fmt"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, agent_id, ticker, quantity, entry_price, cost_basis, entry_date, status,
	exit_price, exit_date, realized_pnl, created_at, updated_at`

// Insert adds a new position. Returns ErrDuplicateKey if an open position
// for (agent_id, ticker) already exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.q.Exec(ctx, query,
		p.ID, p.AgentID, p.Ticker, p.Quantity, p.EntryPrice, p.CostBasis, p.EntryDate, string(p.Status),
		p.ExitPrice, p.ExitDate, p.RealizedPnL, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update overwrites quantity, prices and close fields.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	query := `
		UPDATE positions SET
			quantity = $2, entry_price = $3, cost_basis = $4, status = $5,
			exit_price = $6, exit_date = $7, realized_pnl = $8, updated_at = $9
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query,
		p.ID, p.Quantity, p.EntryPrice, p.CostBasis, string(p.Status),
		p.ExitPrice, p.ExitDate, p.RealizedPnL, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetOpen retrieves the open position for a ticker. Returns ErrNotFound if none.
func (s *PositionStore) GetOpen(ctx context.Context, agentID, ticker string) (*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE agent_id = $1 AND ticker = $2 AND status = 'open'
	`

	p, err := scanPosition(s.q.QueryRow(ctx, query, agentID, ticker))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open position: %w", err)
	}
	return p, nil
}

// ListOpen retrieves open positions ordered by entry_date DESC.
func (s *PositionStore) ListOpen(ctx context.Context, agentID string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE agent_id = $1 AND status = 'open'
		ORDER BY entry_date DESC, id ASC
	`
	return s.list(ctx, query, agentID)
}

// ListByAgent retrieves all positions, open and closed, ordered by entry_date DESC.
func (s *PositionStore) ListByAgent(ctx context.Context, agentID string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE agent_id = $1
		ORDER BY entry_date DESC, id ASC
	`
	return s.list(ctx, query, agentID)
}

func (s *PositionStore) list(ctx context.Context, query string, agentID string) ([]*domain.Position, error) {
	rows, err := s.q.Query(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var result []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return result, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p      domain.Position
		status string
	)
	err := row.Scan(
		&p.ID, &p.AgentID, &p.Ticker, &p.Quantity, &p.EntryPrice, &p.CostBasis, &p.EntryDate, &status,
		&p.ExitPrice, &p.ExitDate, &p.RealizedPnL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PositionStatus(status)
	p.EntryDate = p.EntryDate.UTC()
	p.ExitDate = utcPtr(p.ExitDate)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
