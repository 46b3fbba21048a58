package clickhouse

import (
	"context"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/observability"
	"trading-arena/internal/storage"
)

// PerformanceStore implements storage.PerformanceStore using ClickHouse.
// Each snapshot is one raw sample; daily candles are built at read time.
type PerformanceStore struct {
	conn *Conn
}

// NewPerformanceStore creates a new PerformanceStore.
func NewPerformanceStore(conn *Conn) *PerformanceStore {
	return &PerformanceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// Record appends one snapshot sample. Re-sending the same snapshot is
// collapsed by the ReplacingMergeTree key.
func (s *PerformanceStore) Record(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	query := `
		INSERT INTO portfolio_performance (
			agent_id, snapshot_id, ts,
			total_value, cash, daily_return_pct, cumulative_return_pct, position_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err := s.conn.Exec(ctx, query,
		snap.AgentID, snap.ID, snap.CreatedAt.UTC(),
		snap.TotalValue.InexactFloat64(), snap.Cash.InexactFloat64(),
		snap.DailyReturnPct, snap.CumulativeReturnPct, uint32(len(snap.Positions)),
	)
	observability.RecordDBQuery("clickhouse", "insert", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert performance sample: %w", err)
	}
	return nil
}

// DailyCurve aggregates samples per UTC day from since, ordered by day ASC.
func (s *PerformanceStore) DailyCurve(ctx context.Context, agentID string, since time.Time) ([]*domain.PerformancePoint, error) {
	query := `
		SELECT
			toDate(ts) AS day,
			argMin(total_value, ts) AS open_value,
			argMax(total_value, ts) AS close_value,
			max(total_value) AS high_value,
			min(total_value) AS low_value,
			argMax(cumulative_return_pct, ts) AS cumulative_return_pct,
			count() AS samples
		FROM portfolio_performance FINAL
		WHERE agent_id = ? AND ts >= ?
		GROUP BY day
		ORDER BY day ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, agentID, since.UTC())
	observability.RecordDBQuery("clickhouse", "select", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query daily curve: %w", err)
	}
	defer rows.Close()

	var result []*domain.PerformancePoint
	for rows.Next() {
		p := &domain.PerformancePoint{AgentID: agentID}
		if err := rows.Scan(
			&p.Day, &p.OpenValue, &p.CloseValue, &p.HighValue, &p.LowValue,
			&p.CumulativeReturnPct, &p.Samples,
		); err != nil {
			return nil, fmt.Errorf("scan daily curve: %w", err)
		}
		p.Day = time.Date(p.Day.Year(), p.Day.Month(), p.Day.Day(), 0, 0, 0, 0, time.UTC)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily curve: %w", err)
	}
	return result, nil
}
