// Package ledger owns an agent's cash and positions. Every mutation runs
// inside the repository's per-agent transaction so that concurrent
// requests for one agent are serialized and either fully apply or leave
// no trace.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/pricing"
	"trading-arena/internal/recommendation"
	"trading-arena/internal/storage"
)

// moneyScale matches the NUMERIC(20,6) columns of the relational store.
const moneyScale = 6

var hundred = decimal.NewFromInt(100)

// Notifier receives committed portfolio changes.
type Notifier interface {
	PortfolioUpdated(agentID string, summary *domain.PortfolioSummary)
}

// Ledger applies trades and values portfolios.
type Ledger struct {
	repo        storage.Repository
	oracle      pricing.Oracle
	cache       *recommendation.Cache
	performance storage.PerformanceStore
	notifier    Notifier
	txTimeout   time.Duration
	now         func() time.Time
	logger      *log.Logger
}

// Options for creating a Ledger.
type Options struct {
	// Required
	Repository storage.Repository
	Oracle     pricing.Oracle

	// Optional
	Cache       *recommendation.Cache    // defaults to a cache over Repository.Recommendations()
	Performance storage.PerformanceStore // snapshot mirror, best effort
	Notifier    Notifier
	TxTimeout   time.Duration // bound on one ApplyTrade transaction, default 10s
	Now         func() time.Time
	Logger      *log.Logger
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	cache := opts.Cache
	if cache == nil {
		cache = recommendation.NewCache(opts.Repository.Recommendations(), 0)
	}
	txTimeout := opts.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Ledger{
		repo:        opts.Repository,
		oracle:      opts.Oracle,
		cache:       cache,
		performance: opts.Performance,
		notifier:    opts.Notifier,
		txTimeout:   txTimeout,
		now:         now,
		logger:      logger,
	}
}

// Summarize values the agent's open positions at current prices. A ticker
// whose price cannot be resolved is valued at its entry price and flagged
// stale; Summarize itself never fails on pricing.
func (l *Ledger) Summarize(ctx context.Context, agent *domain.Agent) (*domain.PortfolioSummary, error) {
	return l.summarize(ctx, l.repo, agent)
}

func (l *Ledger) summarize(ctx context.Context, r storage.Repository, agent *domain.Agent) (*domain.PortfolioSummary, error) {
	positions, err := r.Positions().ListOpen(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	tickers := make([]string, 0, len(positions))
	for _, p := range positions {
		tickers = append(tickers, p.Ticker)
	}
	prices := pricing.Prices(ctx, l.oracle, tickers)

	summary := &domain.PortfolioSummary{
		AgentID:        agent.ID,
		Cash:           agent.CashBalance,
		PositionsValue: decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		Positions:      make([]domain.PositionValuation, 0, len(positions)),
		AsOf:           l.now().UTC(),
	}

	for _, p := range positions {
		price, ok := prices[p.Ticker]
		if !ok {
			price = p.EntryPrice
		}
		qty := decimal.NewFromInt(p.Quantity)
		cost := p.CostBasis
		if cost.IsZero() {
			cost = p.EntryPrice.Mul(qty)
		}
		value := price.Mul(qty)
		unrealized := value.Sub(cost)

		var pct float64
		if cost.IsPositive() {
			pct = unrealized.Div(cost).Mul(hundred).InexactFloat64()
		}

		summary.Positions = append(summary.Positions, domain.PositionValuation{
			Position:         *p,
			CurrentPrice:     price,
			CurrentValue:     value,
			UnrealizedPnL:    unrealized,
			UnrealizedPnLPct: pct,
			PriceStale:       !ok,
		})
		summary.PositionsValue = summary.PositionsValue.Add(value)
		summary.UnrealizedPnL = summary.UnrealizedPnL.Add(unrealized)
	}

	summary.TotalValue = summary.Cash.Add(summary.PositionsValue)
	summary.TotalReturnPct = agent.ReturnPct(summary.TotalValue)
	return summary, nil
}

// Snapshot derives a point-in-time record from a summary. The daily return
// compares against the agent's last persisted value and is 0 when that is 0.
func Snapshot(agent *domain.Agent, summary *domain.PortfolioSummary, at time.Time) *domain.PortfolioSnapshot {
	var daily float64
	if agent.CurrentValue.IsPositive() {
		daily = summary.TotalValue.Sub(agent.CurrentValue).Div(agent.CurrentValue).Mul(hundred).InexactFloat64()
	}

	positions := make([]domain.SnapshotPosition, 0, len(summary.Positions))
	for _, p := range summary.Positions {
		positions = append(positions, domain.SnapshotPosition{
			Ticker:        p.Ticker,
			Quantity:      p.Quantity,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			Value:         p.CurrentValue,
			UnrealizedPnL: p.UnrealizedPnL,
		})
	}

	return &domain.PortfolioSnapshot{
		ID:                  uuid.NewString(),
		AgentID:             agent.ID,
		TotalValue:          summary.TotalValue.Round(moneyScale),
		Cash:                summary.Cash,
		Positions:           positions,
		DailyReturnPct:      daily,
		CumulativeReturnPct: summary.TotalReturnPct,
		CreatedAt:           at,
	}
}

// recordSnapshot persists a snapshot and moves the agent's stored value to
// the summary total. Must run inside the agent transaction.
func (l *Ledger) recordSnapshot(ctx context.Context, r storage.Repository, agent *domain.Agent, summary *domain.PortfolioSummary, at time.Time) (*domain.PortfolioSnapshot, error) {
	snap := Snapshot(agent, summary, at)
	if err := r.Snapshots().Insert(ctx, snap); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	agent.CurrentValue = snap.TotalValue
	agent.TotalReturnPct = summary.TotalReturnPct
	agent.UpdatedAt = at
	if err := r.Agents().Update(ctx, agent); err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return snap, nil
}

// afterCommit mirrors the snapshot and notifies subscribers. Failures here
// never undo the committed ledger state.
func (l *Ledger) afterCommit(ctx context.Context, snap *domain.PortfolioSnapshot, summary *domain.PortfolioSummary) {
	if l.performance != nil && snap != nil {
		if err := l.performance.Record(ctx, snap); err != nil {
			l.logger.Printf("performance mirror failed for %s: %v", snap.AgentID, err)
		}
	}
	if l.notifier != nil && summary != nil {
		l.notifier.PortfolioUpdated(summary.AgentID, summary)
	}
}

func (l *Ledger) loadAgent(ctx context.Context, r storage.Repository, agentID string) (*domain.Agent, error) {
	agent, err := r.Agents().GetByID(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(domain.CodeAgentNotFound, "agent %s not found", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	return agent, nil
}

// txContext detaches ctx from caller cancellation and bounds it by the
// ledger timeout.
func (l *Ledger) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.txTimeout)
}
