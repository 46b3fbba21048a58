package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Position valuations are kept as a JSONB array.
type SnapshotStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `
	id, agent_id, total_value, cash, positions,
	daily_return_pct, cumulative_return_pct, created_at`

// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	positions := snap.Positions
	if positions == nil {
		positions = []domain.SnapshotPosition{}
	}
	raw, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("marshal snapshot positions: %w", err)
	}

	query := `
		INSERT INTO portfolio_snapshots (` + snapshotColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.q.Exec(ctx, query,
		snap.ID, snap.AgentID, snap.TotalValue, snap.Cash, raw,
		snap.DailyReturnPct, snap.CumulativeReturnPct, snap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListSince retrieves snapshots created at or after since, ordered by created_at ASC.
func (s *SnapshotStore) ListSince(ctx context.Context, agentID string, since time.Time) ([]*domain.PortfolioSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM portfolio_snapshots
		WHERE agent_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.q.Query(ctx, query, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []*domain.PortfolioSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}

// Latest retrieves the newest snapshot. Returns ErrNotFound if none.
func (s *SnapshotStore) Latest(ctx context.Context, agentID string) (*domain.PortfolioSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM portfolio_snapshots
		WHERE agent_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	snap, err := scanSnapshot(s.q.QueryRow(ctx, query, agentID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

func scanSnapshot(row rowScanner) (*domain.PortfolioSnapshot, error) {
	var (
		snap domain.PortfolioSnapshot
		raw  []byte
	)
	err := row.Scan(
		&snap.ID, &snap.AgentID, &snap.TotalValue, &snap.Cash, &raw,
		&snap.DailyReturnPct, &snap.CumulativeReturnPct, &snap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &snap.Positions); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot positions: %w", err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	return &snap, nil
}
