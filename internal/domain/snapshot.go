package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotPosition is the valuation of one holding at snapshot time.
type SnapshotPosition struct {
	Ticker        string          `json:"ticker"`
	Quantity      int64           `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioSnapshot is a point-in-time valuation of an agent.
// Corresponds to the portfolio_snapshots table in PostgreSQL.
type PortfolioSnapshot struct {
	ID                  string
	AgentID             string
	TotalValue          decimal.Decimal
	Cash                decimal.Decimal
	Positions           []SnapshotPosition
	DailyReturnPct      float64 // change against the previously persisted value
	CumulativeReturnPct float64 // change against starting capital
	CreatedAt           time.Time
}

// PerformancePoint is one day of an agent's equity curve.
// Corresponds to the portfolio_performance table in ClickHouse.
type PerformancePoint struct {
	AgentID             string
	Day                 time.Time
	OpenValue           float64
	CloseValue          float64
	HighValue           float64
	LowValue            float64
	CumulativeReturnPct float64 // as of the last sample of the day
	Samples             uint64
}
