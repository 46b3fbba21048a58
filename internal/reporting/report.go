package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/metrics"
)

// Report is the arena-wide standings over a trailing window.
type Report struct {
	GeneratedAt time.Time
	WindowStart time.Time
	Days        int

	Summary Summary

	// Sorted by total return DESC, agent id ASC.
	Agents []AgentRow
}

// Summary aggregates the whole field.
type Summary struct {
	AgentCount      int
	TradingAgents   int // agents with at least one trade
	TotalTrades     int
	TotalAPICost    decimal.Decimal
	MedianReturnPct float64
	BestAgentID     string
	WorstAgentID    string
}

// AgentRow is one agent's line in the report.
type AgentRow struct {
	AgentID        string
	Name           string
	Owner          string
	LLMModel       string
	CurrentValue   decimal.Decimal
	TotalReturnPct float64
	WinRate        float64 // 0..1
	TotalTrades    int
	TotalAPICost   decimal.Decimal
	Stats          metrics.Stats // over the window's snapshots
}
