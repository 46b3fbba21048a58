package domain

import "fmt"

// RiskParams are the per-agent trading limits.
type RiskParams struct {
	StopLossPct     float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`         // loss percent that forces a SELL
	MaxPositionPct  float64 `json:"max_position_pct" yaml:"max_position_pct"`   // max share of total value per ticker
	MaxTradesPerDay int     `json:"max_trades_per_day" yaml:"max_trades_per_day"` // trades per UTC day; only BUYs are refused
}

// DefaultRiskParams returns the limits applied when an agent is created
// without explicit values.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		StopLossPct:     5,
		MaxPositionPct:  25,
		MaxTradesPerDay: 3,
	}
}

// Validate checks that all limits are within their allowed ranges.
func (p RiskParams) Validate() error {
	if p.StopLossPct <= 0 || p.StopLossPct > 100 {
		return fmt.Errorf("stop_loss_pct must be in (0, 100], got %v", p.StopLossPct)
	}
	if p.MaxPositionPct <= 0 || p.MaxPositionPct > 100 {
		return fmt.Errorf("max_position_pct must be in (0, 100], got %v", p.MaxPositionPct)
	}
	if p.MaxTradesPerDay < 1 || p.MaxTradesPerDay > 100 {
		return fmt.Errorf("max_trades_per_day must be in [1, 100], got %d", p.MaxTradesPerDay)
	}
	return nil
}
