// Package decision produces trade proposals for an agent from its portfolio
// and recent news. The proposal is untrusted input: Normalize validates it
// before anything downstream uses it.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

// ErrInvalidProposal is returned when a source's output cannot be used.
var ErrInvalidProposal = errors.New("invalid proposal")

// Input is everything a source sees about the agent.
type Input struct {
	Agent        *domain.Agent
	Portfolio    *domain.PortfolioSummary
	RecentTrades []*domain.Trade
	News         []NewsItem
}

// Proposal is a raw suggestion from a decision source.
type Proposal struct {
	Action         string  `json:"action"`
	Ticker         string  `json:"ticker"`
	Quantity       int64   `json:"quantity,omitempty"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	NewsSummary    string  `json:"news_summary"`
	RiskAssessment string  `json:"risk_assessment"`
}

// Usage is the metered cost of producing a proposal.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         decimal.Decimal // USD
}

// Result pairs a proposal with its usage.
type Result struct {
	Proposal *Proposal
	Usage    Usage
}

// Source produces one proposal per call.
type Source interface {
	Propose(ctx context.Context, in *Input) (*Result, error)
}

// Decision is a validated proposal.
type Decision struct {
	Action         domain.Action
	Ticker         string
	Quantity       int64
	Confidence     float64
	Reasoning      string
	NewsSummary    string
	RiskAssessment string
}

// Normalize validates p: the action must be BUY, SELL or HOLD, BUY and
// SELL need a ticker, the ticker is upper-cased, quantity defaults to 1 and
// confidence is clamped to [0, 1].
func Normalize(p *Proposal) (*Decision, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty proposal", ErrInvalidProposal)
	}
	action, err := domain.ParseAction(p.Action)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}

	ticker := domain.NormalizeTicker(p.Ticker)
	if action.Executable() && (ticker == "" || len(ticker) > 10 || strings.ContainsAny(ticker, " \t\n")) {
		return nil, fmt.Errorf("%w: ticker %q", ErrInvalidProposal, p.Ticker)
	}

	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}

	conf := p.Confidence
	switch {
	case conf < 0:
		conf = 0
	case conf > 1:
		conf = 1
	}

	return &Decision{
		Action:         action,
		Ticker:         ticker,
		Quantity:       qty,
		Confidence:     conf,
		Reasoning:      strings.TrimSpace(p.Reasoning),
		NewsSummary:    strings.TrimSpace(p.NewsSummary),
		RiskAssessment: strings.TrimSpace(p.RiskAssessment),
	}, nil
}
