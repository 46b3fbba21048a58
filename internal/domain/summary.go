package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionValuation is an open position priced at the current market.
type PositionValuation struct {
	Position
	CurrentPrice     decimal.Decimal
	CurrentValue     decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	UnrealizedPnLPct float64
	PriceStale       bool // current price fell back to the entry price
}

// PortfolioSummary is the live valuation of an agent's cash and holdings.
type PortfolioSummary struct {
	AgentID        string
	Cash           decimal.Decimal
	PositionsValue decimal.Decimal
	TotalValue     decimal.Decimal
	TotalReturnPct float64
	UnrealizedPnL  decimal.Decimal
	Positions      []PositionValuation
	AsOf           time.Time
}

// PositionValue returns the current market value held in ticker.
func (s *PortfolioSummary) PositionValue(ticker string) decimal.Decimal {
	for _, p := range s.Positions {
		if p.Ticker == ticker {
			return p.CurrentValue
		}
	}
	return decimal.Zero
}

// Holding returns the valued open position for ticker, if any.
func (s *PortfolioSummary) Holding(ticker string) (*PositionValuation, bool) {
	for i := range s.Positions {
		if s.Positions[i].Ticker == ticker {
			return &s.Positions[i], true
		}
	}
	return nil, false
}
