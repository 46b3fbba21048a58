package decision

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

// RulesSource is a deterministic source for offline runs and tests.
// It takes profit on the best holding above TakeProfitPct, otherwise buys
// the first watchlist ticker not yet held while cash exceeds MinCashPct of
// the portfolio, otherwise holds.
type RulesSource struct {
	TakeProfitPct float64
	MinCashPct    float64
}

// NewRulesSource creates a RulesSource with default thresholds.
func NewRulesSource() *RulesSource {
	return &RulesSource{TakeProfitPct: 15, MinCashPct: 20}
}

// Propose implements Source.
func (s *RulesSource) Propose(ctx context.Context, in *Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	usage := Usage{Model: "rules", Cost: decimal.Zero}

	var best *domain.PositionValuation
	for i := range in.Portfolio.Positions {
		p := &in.Portfolio.Positions[i]
		if p.UnrealizedPnLPct >= s.TakeProfitPct && (best == nil || p.UnrealizedPnLPct > best.UnrealizedPnLPct) {
			best = p
		}
	}
	if best != nil {
		return &Result{Usage: usage, Proposal: &Proposal{
			Action:         string(domain.ActionSell),
			Ticker:         best.Ticker,
			Quantity:       best.Quantity,
			Confidence:     0.7,
			Reasoning:      fmt.Sprintf("%s is up %.1f%%, taking profit", best.Ticker, best.UnrealizedPnLPct),
			RiskAssessment: "Low",
		}}, nil
	}

	if in.Portfolio.TotalValue.IsPositive() {
		cashPct := in.Portfolio.Cash.Div(in.Portfolio.TotalValue).Mul(decimal.NewFromInt(100)).InexactFloat64()
		if cashPct > s.MinCashPct {
			for _, t := range in.Agent.Watchlist {
				ticker := domain.NormalizeTicker(t)
				if _, held := in.Portfolio.Holding(ticker); held || ticker == "" {
					continue
				}
				return &Result{Usage: usage, Proposal: &Proposal{
					Action:         string(domain.ActionBuy),
					Ticker:         ticker,
					Confidence:     0.55,
					Reasoning:      fmt.Sprintf("%.0f%% of the portfolio is idle cash; opening a position in %s", cashPct, ticker),
					RiskAssessment: "Medium",
				}}, nil
			}
		}
	}

	return &Result{Usage: usage, Proposal: &Proposal{
		Action:         string(domain.ActionHold),
		Confidence:     0.5,
		Reasoning:      "No holding has reached the profit target and no new entry is available.",
		RiskAssessment: "Low",
	}}, nil
}
