package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is a cached suggestion produced by analysis.
// Corresponds to the agent_recommendations table in PostgreSQL.
type Recommendation struct {
	ID             string
	AgentID        string
	Action         Action
	Ticker         string
	Quantity       int64
	Price          decimal.Decimal
	TotalValue     decimal.Decimal
	Confidence     float64
	Reasoning      string
	NewsSummary    string
	RiskAssessment string
	APICost        decimal.Decimal
	Forced         bool // produced by the stop-loss rule, not a decision source

	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsExecuted bool
	ExecutedAt *time.Time
}

// IsActive reports whether the recommendation can still be served at now.
func (r *Recommendation) IsActive(now time.Time) bool {
	return !r.IsExecuted && r.ExpiresAt.After(now)
}

// Clone returns a deep copy of the recommendation.
func (r *Recommendation) Clone() *Recommendation {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExecutedAt != nil {
		t := *r.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}
