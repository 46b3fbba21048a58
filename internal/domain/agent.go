package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus is the lifecycle state of a trading agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusPaused   AgentStatus = "paused"
	AgentStatusArchived AgentStatus = "archived"
)

// Valid reports whether s is a known status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusPaused, AgentStatusArchived:
		return true
	}
	return false
}

// AutoInterval is the cadence of unattended analysis for an agent.
type AutoInterval string

const (
	AutoInterval3h  AutoInterval = "3h"
	AutoInterval10h AutoInterval = "10h"
	AutoInterval24h AutoInterval = "24h"
)

// Duration returns the interval length, or zero for an unknown value.
func (i AutoInterval) Duration() time.Duration {
	switch i {
	case AutoInterval3h:
		return 3 * time.Hour
	case AutoInterval10h:
		return 10 * time.Hour
	case AutoInterval24h:
		return 24 * time.Hour
	}
	return 0
}

// Valid reports whether i is a supported interval.
func (i AutoInterval) Valid() bool {
	return i.Duration() > 0
}

// DefaultStartingCapital is the paper balance new agents start with.
var DefaultStartingCapital = decimal.NewFromInt(100000)

// Agent is a user-owned simulated trader with its own cash and risk limits.
// Corresponds to the agents table in PostgreSQL.
type Agent struct {
	ID           string
	UserID       string
	Name         string
	Description  string
	LLMModel     string
	SystemPrompt string
	Watchlist    []string // tickers the decision source may consider
	Risk         RiskParams
	IsPublic     bool
	Status       AgentStatus

	StartingCapital decimal.Decimal
	CashBalance     decimal.Decimal
	CurrentValue    decimal.Decimal // last persisted total value
	TotalReturnPct  float64

	TotalTrades   int
	WinningTrades int
	WinRate       float64 // WinningTrades / TotalTrades, 0..1
	TotalAPICost  decimal.Decimal

	AutoExecute        bool
	AutoInterval       AutoInterval
	NextAutoAnalysisAt *time.Time
	LastAnalysisAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	if a.Watchlist != nil {
		c.Watchlist = append([]string(nil), a.Watchlist...)
	}
	if a.NextAutoAnalysisAt != nil {
		t := *a.NextAutoAnalysisAt
		c.NextAutoAnalysisAt = &t
	}
	if a.LastAnalysisAt != nil {
		t := *a.LastAnalysisAt
		c.LastAnalysisAt = &t
	}
	return &c
}

// ReturnPct computes the cumulative return of totalValue against the
// agent's starting capital, in percent.
func (a *Agent) ReturnPct(totalValue decimal.Decimal) float64 {
	if a.StartingCapital.IsZero() {
		return 0
	}
	return totalValue.Sub(a.StartingCapital).Div(a.StartingCapital).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
