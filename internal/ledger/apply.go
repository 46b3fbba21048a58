package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/observability"
	"trading-arena/internal/risk"
	"trading-arena/internal/storage"
)

const maxTickerLen = 10

// TradeRequest is a user-confirmed order.
type TradeRequest struct {
	Action     domain.Action
	Ticker     string
	Quantity   int64
	Price      decimal.Decimal
	RequestKey string        // optional idempotency key, already scoped to the agent
	Auto       *AutoSettings // optional auto-execution change applied with the trade
}

// AutoSettings changes an agent's unattended analysis schedule.
type AutoSettings struct {
	Enabled  *bool
	Interval domain.AutoInterval
}

// TradeResult is the committed outcome of ApplyTrade.
type TradeResult struct {
	Trade       *domain.Trade
	Position    *domain.Position // state after the trade, nil if never opened
	Agent       *domain.Agent
	Portfolio   *domain.PortfolioSummary
	Snapshot    *domain.PortfolioSnapshot
	RealizedPnL *decimal.Decimal // SELL only
	Replayed    bool             // answered from an earlier trade with the same key
}

// Validate checks the request fields and normalizes the ticker.
func (req *TradeRequest) Validate() error {
	switch req.Action {
	case domain.ActionBuy, domain.ActionSell:
	case domain.ActionHold:
		return domain.NewError(domain.CodeInvalidAction, "HOLD cannot be executed")
	default:
		return domain.NewError(domain.CodeInvalidAction, "action must be BUY or SELL, got %q", req.Action)
	}

	req.Ticker = domain.NormalizeTicker(req.Ticker)
	if req.Ticker == "" || len(req.Ticker) > maxTickerLen {
		return domain.NewError(domain.CodeInvalidTicker, "ticker must be 1-%d characters", maxTickerLen)
	}
	if req.Quantity <= 0 {
		return domain.NewError(domain.CodeInvalidQuantity, "quantity must be a positive integer, got %d", req.Quantity)
	}
	if !req.Price.IsPositive() {
		return domain.NewError(domain.CodeInvalidPrice, "price must be positive, got %s", req.Price)
	}
	if req.Auto != nil && req.Auto.Interval != "" && !req.Auto.Interval.Valid() {
		return domain.NewError(domain.CodeInvalidTrade, "auto interval must be one of 3h, 10h, 24h")
	}
	req.Price = req.Price.Round(moneyScale)
	return nil
}

// ApplyTrade executes a BUY or SELL for the agent. All checks and writes
// happen inside one agent transaction: on any rejection nothing changes.
func (l *Ledger) ApplyTrade(ctx context.Context, agentID string, req TradeRequest) (*TradeResult, error) {
	if err := req.Validate(); err != nil {
		observability.RecordTradeRejected(errorCode(err))
		return nil, err
	}

	ctx, cancel := l.txContext(ctx)
	defer cancel()

	start := time.Now()
	var result *TradeResult
	err := l.repo.InAgentTx(ctx, agentID, func(ctx context.Context, r storage.Repository) error {
		var err error
		result, err = l.applyTrade(ctx, r, agentID, req)
		return err
	})
	if err != nil {
		var derr *domain.Error
		if !errors.As(err, &derr) && errors.Is(err, storage.ErrNotFound) {
			err = domain.NewError(domain.CodeAgentNotFound, "agent %s not found", agentID)
		}
		observability.RecordTradeRejected(errorCode(err))
		return nil, err
	}

	if result.Replayed {
		observability.RecordTradeReplayed()
		return result, nil
	}

	observability.RecordTradeApplied(string(req.Action), time.Since(start).Seconds())
	observability.RecordSnapshot()
	l.logger.Printf("%s %s %d %s @ %s (cash %s)",
		agentID, req.Action, req.Quantity, req.Ticker, req.Price, result.Agent.CashBalance)
	l.afterCommit(ctx, result.Snapshot, result.Portfolio)
	return result, nil
}

func (l *Ledger) applyTrade(ctx context.Context, r storage.Repository, agentID string, req TradeRequest) (*TradeResult, error) {
	agent, err := l.loadAgent(ctx, r, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == domain.AgentStatusArchived {
		return nil, domain.NewError(domain.CodeAgentInactive, "agent %s is archived", agentID)
	}

	if req.RequestKey != "" {
		prior, err := r.Trades().GetByRequestKey(ctx, agentID, req.RequestKey)
		if err == nil {
			return l.replay(ctx, r, agent, prior)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("lookup request key: %w", err)
		}
	}

	now := l.now().UTC()
	trade := &domain.Trade{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Action:     req.Action,
		Ticker:     req.Ticker,
		Quantity:   req.Quantity,
		Price:      req.Price,
		TotalValue: req.Price.Mul(decimal.NewFromInt(req.Quantity)),
		APICost:    decimal.Zero,
		RequestKey: req.RequestKey,
		CreatedAt:  now,
	}

	// Attribute confidence, reasoning and cost from the recommendation
	// being acted on, if it matches this order.
	cache := l.cache.Bind(r.Recommendations())
	rec, err := cache.GetActive(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Action == req.Action && rec.Ticker == req.Ticker {
		trade.Confidence = rec.Confidence
		trade.Reasoning = rec.Reasoning
		trade.NewsSummary = rec.NewsSummary
		trade.APICost = rec.APICost
	} else {
		trade.Confidence = 1
		trade.Reasoning = fmt.Sprintf("Manual %s of %d %s at %s", req.Action, req.Quantity, req.Ticker, req.Price.StringFixed(2))
	}

	var position *domain.Position
	switch req.Action {
	case domain.ActionBuy:
		position, err = l.buy(ctx, r, agent, trade, now)
	case domain.ActionSell:
		position, err = l.sell(ctx, r, agent, trade, now)
	}
	if err != nil {
		return nil, err
	}

	agent.TotalTrades++
	if trade.IsProfitable != nil && *trade.IsProfitable {
		agent.WinningTrades++
	}
	agent.WinRate = float64(agent.WinningTrades) / float64(agent.TotalTrades)
	req.Auto.Apply(agent, now)

	if err := r.Trades().Insert(ctx, trade); err != nil {
		return nil, fmt.Errorf("insert trade: %w", err)
	}
	if _, err := cache.InvalidateOnTrade(ctx, agentID); err != nil {
		return nil, err
	}

	summary, err := l.summarize(ctx, r, agent)
	if err != nil {
		return nil, err
	}
	snap, err := l.recordSnapshot(ctx, r, agent, summary, now)
	if err != nil {
		return nil, err
	}

	return &TradeResult{
		Trade:       trade,
		Position:    position,
		Agent:       agent,
		Portfolio:   summary,
		Snapshot:    snap,
		RealizedPnL: trade.RealizedPnL,
	}, nil
}

func (l *Ledger) buy(ctx context.Context, r storage.Repository, agent *domain.Agent, trade *domain.Trade, now time.Time) (*domain.Position, error) {
	// Every trade today counts toward the limit; only buys are refused.
	executed, err := r.Trades().CountSince(ctx, agent.ID, risk.DayStart(now))
	if err != nil {
		return nil, fmt.Errorf("count trades today: %w", err)
	}
	if !risk.CheckDailyTradeLimit(executed, agent.Risk.MaxTradesPerDay) {
		return nil, domain.NewError(domain.CodeTradeLimitReached,
			"daily trade limit of %d reached", agent.Risk.MaxTradesPerDay).
			With("limit", agent.Risk.MaxTradesPerDay).
			With("executed_today", executed)
	}

	cost := trade.TotalValue
	if cost.GreaterThan(agent.CashBalance) {
		return nil, domain.NewError(domain.CodeInsufficientFunds,
			"need %s, have %s", cost.StringFixed(2), agent.CashBalance.StringFixed(2)).
			With("needed", cost).
			With("available", agent.CashBalance)
	}

	summary, err := l.summarize(ctx, r, agent)
	if err != nil {
		return nil, err
	}
	check := risk.ValidateMaxPositionSize(summary.TotalValue, cost, summary.PositionValue(trade.Ticker), agent.Risk.MaxPositionPct)
	if !check.Valid {
		return nil, domain.NewError(domain.CodeMaxPositionExceeded,
			"position would be %.1f%% of portfolio, max %.1f%%", check.CurrentPct, agent.Risk.MaxPositionPct).
			With("current_pct", check.CurrentPct).
			With("max_pct", agent.Risk.MaxPositionPct).
			With("max_allowed", check.MaxAllowed)
	}

	agent.CashBalance = agent.CashBalance.Sub(cost)

	pos, err := r.Positions().GetOpen(ctx, agent.ID, trade.Ticker)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		pos = &domain.Position{
			ID:         uuid.NewString(),
			AgentID:    agent.ID,
			Ticker:     trade.Ticker,
			Quantity:   trade.Quantity,
			EntryPrice: trade.Price,
			CostBasis:  cost,
			EntryDate:  now,
			Status:     domain.PositionStatusOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := r.Positions().Insert(ctx, pos); err != nil {
			return nil, fmt.Errorf("insert position: %w", err)
		}
		return pos, nil
	case err != nil:
		return nil, fmt.Errorf("load position: %w", err)
	}

	pos.Quantity += trade.Quantity
	pos.CostBasis = pos.CostBasis.Add(cost)
	pos.EntryPrice = pos.CostBasis.Div(decimal.NewFromInt(pos.Quantity)).Round(moneyScale)
	pos.UpdatedAt = now
	if err := r.Positions().Update(ctx, pos); err != nil {
		return nil, fmt.Errorf("update position: %w", err)
	}
	return pos, nil
}

func (l *Ledger) sell(ctx context.Context, r storage.Repository, agent *domain.Agent, trade *domain.Trade, now time.Time) (*domain.Position, error) {
	pos, err := r.Positions().GetOpen(ctx, agent.ID, trade.Ticker)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(domain.CodePositionNotFound, "no open position in %s", trade.Ticker).
			With("ticker", trade.Ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	if trade.Quantity > pos.Quantity {
		return nil, domain.NewError(domain.CodeInsufficientShares,
			"need %d shares of %s, have %d", trade.Quantity, trade.Ticker, pos.Quantity).
			With("needed", trade.Quantity).
			With("available", pos.Quantity)
	}

	proceeds := trade.TotalValue
	closing := trade.Quantity == pos.Quantity

	removed := pos.CostBasis
	if !closing {
		removed = pos.CostBasis.Mul(decimal.NewFromInt(trade.Quantity)).
			Div(decimal.NewFromInt(pos.Quantity)).
			Round(moneyScale)
	}
	realized := proceeds.Sub(removed)
	profitable := realized.IsPositive()
	trade.RealizedPnL = &realized
	trade.IsProfitable = &profitable

	agent.CashBalance = agent.CashBalance.Add(proceeds)

	if closing {
		exitPrice := trade.Price
		exitDate := now
		pos.Status = domain.PositionStatusClosed
		pos.ExitPrice = &exitPrice
		pos.ExitDate = &exitDate
		pos.RealizedPnL = &realized
	} else {
		pos.Quantity -= trade.Quantity
		pos.CostBasis = pos.CostBasis.Sub(removed)
	}
	pos.UpdatedAt = now

	if err := r.Positions().Update(ctx, pos); err != nil {
		return nil, fmt.Errorf("update position: %w", err)
	}
	return pos, nil
}

func (l *Ledger) replay(ctx context.Context, r storage.Repository, agent *domain.Agent, prior *domain.Trade) (*TradeResult, error) {
	summary, err := l.summarize(ctx, r, agent)
	if err != nil {
		return nil, err
	}

	var pos *domain.Position
	open, err := r.Positions().GetOpen(ctx, agent.ID, prior.Ticker)
	switch {
	case err == nil:
		pos = open
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load position: %w", err)
	}

	return &TradeResult{
		Trade:       prior,
		Position:    pos,
		Agent:       agent,
		Portfolio:   summary,
		RealizedPnL: prior.RealizedPnL,
		Replayed:    true,
	}, nil
}

// Apply updates the agent's schedule: the next analysis is one interval
// from now, or none when auto execution is off. A nil receiver is a no-op.
func (auto *AutoSettings) Apply(agent *domain.Agent, now time.Time) {
	if auto == nil {
		return
	}
	if auto.Enabled != nil {
		agent.AutoExecute = *auto.Enabled
	}
	if auto.Interval != "" {
		agent.AutoInterval = auto.Interval
	}
	if !agent.AutoExecute {
		agent.NextAutoAnalysisAt = nil
		return
	}
	if !agent.AutoInterval.Valid() {
		agent.AutoInterval = domain.AutoInterval24h
	}
	next := now.Add(agent.AutoInterval.Duration())
	agent.NextAutoAnalysisAt = &next
}

func errorCode(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return string(derr.Code)
	}
	return "INTERNAL"
}
