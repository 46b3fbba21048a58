package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-arena/internal/domain"
)

func TestPerformanceStore_DailyCurve(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPerformanceStore(conn)

	day1 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	samples := []struct {
		id    string
		at    time.Time
		value int64
		cum   float64
	}{
		{"s1", day1.Add(9 * time.Hour), 100000, 0},
		{"s2", day1.Add(12 * time.Hour), 103000, 3},
		{"s3", day1.Add(15 * time.Hour), 99000, -1},
		{"s4", day1.Add(20 * time.Hour), 101000, 1},
		{"s5", day2.Add(10 * time.Hour), 102000, 2},
		{"other", day1.Add(10 * time.Hour), 5000, 0},
	}
	for _, s := range samples {
		agentID := "agent-1"
		if s.id == "other" {
			agentID = "agent-2"
		}
		require.NoError(t, store.Record(ctx, &domain.PortfolioSnapshot{
			ID:                  s.id,
			AgentID:             agentID,
			TotalValue:          decimal.NewFromInt(s.value),
			Cash:                decimal.NewFromInt(s.value),
			CumulativeReturnPct: s.cum,
			CreatedAt:           s.at,
		}))
	}

	// Re-sending a snapshot does not add a sample.
	require.NoError(t, store.Record(ctx, &domain.PortfolioSnapshot{
		ID: "s5", AgentID: "agent-1", TotalValue: decimal.NewFromInt(102000),
		Cash: decimal.NewFromInt(102000), CumulativeReturnPct: 2, CreatedAt: day2.Add(10 * time.Hour),
	}))

	points, err := store.DailyCurve(ctx, "agent-1", day1)
	require.NoError(t, err)
	require.Len(t, points, 2)

	first := points[0]
	assert.True(t, first.Day.Equal(day1))
	assert.Equal(t, 100000.0, first.OpenValue)
	assert.Equal(t, 101000.0, first.CloseValue)
	assert.Equal(t, 103000.0, first.HighValue)
	assert.Equal(t, 99000.0, first.LowValue)
	assert.Equal(t, 1.0, first.CumulativeReturnPct)
	assert.Equal(t, uint64(4), first.Samples)

	second := points[1]
	assert.True(t, second.Day.Equal(day2))
	assert.Equal(t, uint64(1), second.Samples)

	later, err := store.DailyCurve(ctx, "agent-1", day2)
	require.NoError(t, err)
	require.Len(t, later, 1)
}
