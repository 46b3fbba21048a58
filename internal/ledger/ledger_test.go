package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-arena/internal/domain"
	"trading-arena/internal/pricing"
	"trading-arena/internal/recommendation"
	"trading-arena/internal/storage/memory"
)

type fixture struct {
	ledger *Ledger
	repo   *memory.Repository
	oracle *pricing.StaticOracle
	cache  *recommendation.Cache
	now    time.Time
	agent  *domain.Agent
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, capital string, riskParams domain.RiskParams) *fixture {
	t.Helper()
	f := &fixture{
		repo:   memory.NewRepository(),
		oracle: pricing.NewStaticOracle(map[string]float64{"AAPL": 150, "MSFT": 100, "TSLA": 200}).Strict(),
		now:    time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.cache = recommendation.NewCache(f.repo.Recommendations(), time.Hour).WithClock(clock)
	f.ledger = New(Options{
		Repository: f.repo,
		Oracle:     f.oracle,
		Cache:      f.cache,
		Now:        clock,
	})

	f.agent = &domain.Agent{
		ID:              "agent-1",
		UserID:          "user-1",
		Name:            "Momentum",
		Risk:            riskParams,
		Status:          domain.AgentStatusActive,
		StartingCapital: dec(capital),
		CashBalance:     dec(capital),
		CurrentValue:    dec(capital),
		CreatedAt:       f.now,
	}
	require.NoError(t, f.repo.Agents().Insert(context.Background(), f.agent))
	return f
}

func (f *fixture) apply(action domain.Action, ticker string, qty int64, price string) (*TradeResult, error) {
	return f.ledger.ApplyTrade(context.Background(), f.agent.ID, TradeRequest{
		Action:   action,
		Ticker:   ticker,
		Quantity: qty,
		Price:    dec(price),
	})
}

func (f *fixture) reload(t *testing.T) *domain.Agent {
	t.Helper()
	a, err := f.repo.Agents().GetByID(context.Background(), f.agent.ID)
	require.NoError(t, err)
	return a
}

func requireCode(t *testing.T, err error, code domain.ErrorCode) *domain.Error {
	t.Helper()
	var derr *domain.Error
	require.True(t, errors.As(err, &derr), "expected *domain.Error, got %v", err)
	require.Equal(t, code, derr.Code)
	return derr
}

func TestApplyTrade_BuySellLifecycle(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	ctx := context.Background()

	res, err := f.apply(domain.ActionBuy, "aapl", 100, "150")
	require.NoError(t, err)
	assert.True(t, res.Agent.CashBalance.Equal(dec("85000")), "cash %s", res.Agent.CashBalance)
	assert.Equal(t, "AAPL", res.Position.Ticker)
	assert.Equal(t, int64(100), res.Position.Quantity)
	assert.True(t, res.Position.EntryPrice.Equal(dec("150")))

	f.oracle.Set("AAPL", dec("160"))
	res, err = f.apply(domain.ActionSell, "AAPL", 40, "160")
	require.NoError(t, err)
	assert.True(t, res.Agent.CashBalance.Equal(dec("91400")), "cash %s", res.Agent.CashBalance)
	require.NotNil(t, res.RealizedPnL)
	assert.True(t, res.RealizedPnL.Equal(dec("400")), "pnl %s", res.RealizedPnL)
	assert.Equal(t, int64(60), res.Position.Quantity)
	assert.True(t, res.Position.EntryPrice.Equal(dec("150")))
	assert.Equal(t, domain.PositionStatusOpen, res.Position.Status)

	f.oracle.Set("AAPL", dec("140"))
	res, err = f.apply(domain.ActionSell, "AAPL", 60, "140")
	require.NoError(t, err)
	assert.True(t, res.Agent.CashBalance.Equal(dec("99800")), "cash %s", res.Agent.CashBalance)
	assert.True(t, res.RealizedPnL.Equal(dec("-600")), "pnl %s", res.RealizedPnL)
	assert.Equal(t, domain.PositionStatusClosed, res.Position.Status)
	require.NotNil(t, res.Position.ExitPrice)
	assert.True(t, res.Position.ExitPrice.Equal(dec("140")))

	_, err = f.repo.Positions().GetOpen(ctx, f.agent.ID, "AAPL")
	assert.Error(t, err)

	agent := f.reload(t)
	assert.Equal(t, 3, agent.TotalTrades)
	assert.Equal(t, 1, agent.WinningTrades)
	assert.InDelta(t, 1.0/3.0, agent.WinRate, 1e-9)
	assert.True(t, agent.CurrentValue.Equal(dec("99800")))
	assert.InDelta(t, -0.2, agent.TotalReturnPct, 1e-9)

	trades, err := f.repo.Trades().ListByAgent(ctx, f.agent.ID, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 3)

	snaps, err := f.repo.Snapshots().ListSince(ctx, f.agent.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestApplyTrade_InsufficientFunds(t *testing.T) {
	f := newFixture(t, "1000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 100, MaxTradesPerDay: 10})

	_, err := f.apply(domain.ActionBuy, "AAPL", 10, "150")
	derr := requireCode(t, err, domain.CodeInsufficientFunds)
	assert.True(t, derr.Details["needed"].(decimal.Decimal).Equal(dec("1500")))
	assert.True(t, derr.Details["available"].(decimal.Decimal).Equal(dec("1000")))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	agent := f.reload(t)
	assert.True(t, agent.CashBalance.Equal(dec("1000")))
	trades, _ := f.repo.Trades().ListByAgent(context.Background(), f.agent.ID, 0)
	assert.Empty(t, trades)
}

func TestApplyTrade_MaxPositionExceeded(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	_, err := f.apply(domain.ActionBuy, "AAPL", 200, "150")
	derr := requireCode(t, err, domain.CodeMaxPositionExceeded)
	assert.InDelta(t, 30.0, derr.Details["current_pct"].(float64), 1e-9)
	assert.True(t, f.reload(t).CashBalance.Equal(dec("100000")))
}

func TestApplyTrade_MaxPositionCountsExistingHolding(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	_, err := f.apply(domain.ActionBuy, "AAPL", 100, "150")
	require.NoError(t, err)

	// 15000 held + 12000 ordered = 27% of 100000
	_, err = f.apply(domain.ActionBuy, "AAPL", 80, "150")
	requireCode(t, err, domain.CodeMaxPositionExceeded)
}

func TestApplyTrade_SellRejections(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	_, err := f.apply(domain.ActionSell, "AAPL", 1, "150")
	requireCode(t, err, domain.CodePositionNotFound)

	_, err = f.apply(domain.ActionBuy, "AAPL", 10, "150")
	require.NoError(t, err)

	_, err = f.apply(domain.ActionSell, "AAPL", 11, "150")
	derr := requireCode(t, err, domain.CodeInsufficientShares)
	assert.Equal(t, int64(11), derr.Details["needed"])
	assert.Equal(t, int64(10), derr.Details["available"])

	pos, err := f.repo.Positions().GetOpen(context.Background(), f.agent.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Quantity)
}

func TestApplyTrade_Validation(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	tests := []struct {
		name string
		req  TradeRequest
		code domain.ErrorCode
	}{
		{"hold", TradeRequest{Action: domain.ActionHold, Ticker: "AAPL", Quantity: 1, Price: dec("1")}, domain.CodeInvalidAction},
		{"unknown action", TradeRequest{Action: "SHORT", Ticker: "AAPL", Quantity: 1, Price: dec("1")}, domain.CodeInvalidAction},
		{"empty ticker", TradeRequest{Action: domain.ActionBuy, Ticker: "  ", Quantity: 1, Price: dec("1")}, domain.CodeInvalidTicker},
		{"long ticker", TradeRequest{Action: domain.ActionBuy, Ticker: "ABCDEFGHIJK", Quantity: 1, Price: dec("1")}, domain.CodeInvalidTicker},
		{"zero quantity", TradeRequest{Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 0, Price: dec("1")}, domain.CodeInvalidQuantity},
		{"negative price", TradeRequest{Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 1, Price: dec("-1")}, domain.CodeInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.ApplyTrade(context.Background(), f.agent.ID, tt.req)
			requireCode(t, err, tt.code)
		})
	}
}

func TestApplyTrade_UnknownAgent(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	_, err := f.ledger.ApplyTrade(context.Background(), "missing", TradeRequest{
		Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 1, Price: dec("150"),
	})
	requireCode(t, err, domain.CodeAgentNotFound)
}

func TestApplyTrade_DailyLimitBlocksBuysOnly(t *testing.T) {
	f := newFixture(t, "100000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 50, MaxTradesPerDay: 2})

	_, err := f.apply(domain.ActionBuy, "MSFT", 10, "100")
	require.NoError(t, err)
	_, err = f.apply(domain.ActionBuy, "MSFT", 10, "100")
	require.NoError(t, err)

	_, err = f.apply(domain.ActionBuy, "MSFT", 10, "100")
	requireCode(t, err, domain.CodeTradeLimitReached)

	_, err = f.apply(domain.ActionSell, "MSFT", 5, "100")
	require.NoError(t, err, "sells must never be blocked by the daily limit")

	f.now = f.now.Add(12 * time.Hour) // 02:00 UTC next day
	_, err = f.apply(domain.ActionBuy, "MSFT", 10, "100")
	require.NoError(t, err, "limit resets at UTC midnight")
}

func TestApplyTrade_DailyLimitCountsSells(t *testing.T) {
	f := newFixture(t, "100000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 50, MaxTradesPerDay: 3})

	_, err := f.apply(domain.ActionBuy, "MSFT", 10, "100")
	require.NoError(t, err)
	_, err = f.apply(domain.ActionSell, "MSFT", 3, "100")
	require.NoError(t, err)
	_, err = f.apply(domain.ActionSell, "MSFT", 3, "100")
	require.NoError(t, err)

	_, err = f.apply(domain.ActionBuy, "MSFT", 10, "100")
	requireCode(t, err, domain.CodeTradeLimitReached)
	_, err = f.apply(domain.ActionBuy, "MSFT", 10, "100")
	requireCode(t, err, domain.CodeTradeLimitReached)

	var tlErr *domain.Error
	require.ErrorAs(t, err, &tlErr)
	assert.Equal(t, 3, tlErr.Details["executed_today"])

	trades, _ := f.repo.Trades().ListByAgent(context.Background(), f.agent.ID, 0)
	assert.Len(t, trades, 3, "refused buys record nothing")
}

func TestApplyTrade_WeightedAverageEntry(t *testing.T) {
	f := newFixture(t, "100000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 50, MaxTradesPerDay: 10})

	_, err := f.apply(domain.ActionBuy, "TSLA", 10, "100")
	require.NoError(t, err)
	res, err := f.apply(domain.ActionBuy, "TSLA", 10, "200")
	require.NoError(t, err)

	assert.Equal(t, int64(20), res.Position.Quantity)
	assert.True(t, res.Position.EntryPrice.Equal(dec("150")), "entry %s", res.Position.EntryPrice)
	assert.True(t, res.Position.CostBasis.Equal(dec("3000")))

	positions, _ := f.repo.Positions().ListByAgent(context.Background(), f.agent.ID)
	assert.Len(t, positions, 1, "one open position per ticker")
}

func TestApplyTrade_ConservesCapital(t *testing.T) {
	f := newFixture(t, "100000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 40, MaxTradesPerDay: 100})
	ctx := context.Background()

	steps := []struct {
		action domain.Action
		ticker string
		qty    int64
		price  string
	}{
		{domain.ActionBuy, "AAPL", 30, "150.25"},
		{domain.ActionBuy, "MSFT", 70, "99.10"},
		{domain.ActionBuy, "AAPL", 15, "151.75"},
		{domain.ActionSell, "AAPL", 7, "149.00"},
		{domain.ActionSell, "MSFT", 33, "103.40"},
		{domain.ActionBuy, "TSLA", 12, "201.33"},
		{domain.ActionSell, "AAPL", 38, "155.10"},
		{domain.ActionSell, "TSLA", 5, "190.00"},
		{domain.ActionSell, "MSFT", 37, "98.00"},
	}
	for i, s := range steps {
		_, err := f.apply(s.action, s.ticker, s.qty, s.price)
		require.NoError(t, err, "step %d", i)

		agent := f.reload(t)
		require.False(t, agent.CashBalance.IsNegative(), "step %d: negative cash", i)

		open, err := f.repo.Positions().ListOpen(ctx, f.agent.ID)
		require.NoError(t, err)
		basis := decimal.Zero
		for _, p := range open {
			require.Positive(t, p.Quantity)
			basis = basis.Add(p.CostBasis)
		}
		trades, err := f.repo.Trades().ListByAgent(ctx, f.agent.ID, 0)
		require.NoError(t, err)
		realized := decimal.Zero
		for _, tr := range trades {
			if tr.RealizedPnL != nil {
				realized = realized.Add(*tr.RealizedPnL)
			}
		}

		lhs := agent.CashBalance.Add(basis)
		rhs := agent.StartingCapital.Add(realized)
		require.True(t, lhs.Equal(rhs), "step %d: cash+basis %s != capital+realized %s", i, lhs, rhs)
	}
}

func TestApplyTrade_ConcurrentBuysNeverOverspend(t *testing.T) {
	f := newFixture(t, "1000", domain.RiskParams{StopLossPct: 10, MaxPositionPct: 100, MaxTradesPerDay: 100})

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		funds     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.apply(domain.ActionBuy, "MSFT", 1, "100")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientFunds):
				funds++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, funds)
	agent := f.reload(t)
	assert.True(t, agent.CashBalance.IsZero(), "cash %s", agent.CashBalance)

	pos, err := f.repo.Positions().GetOpen(context.Background(), f.agent.ID, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Quantity)
}

func TestApplyTrade_ConcurrentSellsNeverOversell(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	_, err := f.apply(domain.ActionBuy, "MSFT", 5, "100")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.apply(domain.ActionSell, "MSFT", 1, "100")
		}()
	}
	wg.Wait()

	trades, _ := f.repo.Trades().ListByAgent(context.Background(), f.agent.ID, 0)
	sells := 0
	for _, tr := range trades {
		if tr.Action == domain.ActionSell {
			sells++
		}
	}
	assert.Equal(t, 5, sells)
	assert.True(t, f.reload(t).CashBalance.Equal(dec("100000")))
}

func TestApplyTrade_IdempotencyKey(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	req := TradeRequest{Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 10, Price: dec("150"), RequestKey: "req-1"}

	first, err := f.ledger.ApplyTrade(context.Background(), f.agent.ID, req)
	require.NoError(t, err)
	second, err := f.ledger.ApplyTrade(context.Background(), f.agent.ID, req)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Trade.ID, second.Trade.ID)
	assert.True(t, f.reload(t).CashBalance.Equal(dec("98500")))
}

func TestApplyTrade_AttributesAndInvalidatesRecommendation(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	ctx := context.Background()

	_, err := f.cache.Store(ctx, f.agent.ID, &domain.Recommendation{
		Action:     domain.ActionBuy,
		Ticker:     "AAPL",
		Quantity:   10,
		Price:      dec("150"),
		Confidence: 0.8,
		Reasoning:  "earnings beat",
		APICost:    dec("0.0123"),
	}, 0)
	require.NoError(t, err)

	res, err := f.apply(domain.ActionBuy, "AAPL", 10, "150")
	require.NoError(t, err)
	assert.Equal(t, 0.8, res.Trade.Confidence)
	assert.Equal(t, "earnings beat", res.Trade.Reasoning)
	assert.True(t, res.Trade.APICost.Equal(dec("0.0123")))

	active, err := f.cache.GetActive(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Nil(t, active, "trade must invalidate cached recommendations")
}

func TestApplyTrade_ManualTradeAttribution(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())

	res, err := f.apply(domain.ActionBuy, "MSFT", 3, "100")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Trade.Confidence)
	assert.Equal(t, "Manual BUY of 3 MSFT at 100.00", res.Trade.Reasoning)
	assert.True(t, res.Trade.APICost.IsZero())
}

func TestApplyTrade_AutoSettings(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	enabled := true

	res, err := f.ledger.ApplyTrade(context.Background(), f.agent.ID, TradeRequest{
		Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 1, Price: dec("150"),
		Auto: &AutoSettings{Enabled: &enabled, Interval: domain.AutoInterval3h},
	})
	require.NoError(t, err)
	assert.True(t, res.Agent.AutoExecute)
	require.NotNil(t, res.Agent.NextAutoAnalysisAt)
	assert.Equal(t, f.now.Add(3*time.Hour), *res.Agent.NextAutoAnalysisAt)
}

func TestSummarize_FallsBackToEntryPrice(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	_, err := f.apply(domain.ActionBuy, "AAPL", 10, "150")
	require.NoError(t, err)

	f.oracle.Delete("AAPL")
	summary, err := f.ledger.Summarize(context.Background(), f.reload(t))
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)
	assert.True(t, summary.Positions[0].PriceStale)
	assert.True(t, summary.Positions[0].CurrentPrice.Equal(dec("150")))
	assert.True(t, summary.TotalValue.Equal(dec("100000")))
}

func TestSummarize_MarksToMarket(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	_, err := f.apply(domain.ActionBuy, "AAPL", 100, "150")
	require.NoError(t, err)

	f.oracle.Set("AAPL", dec("135"))
	summary, err := f.ledger.Summarize(context.Background(), f.reload(t))
	require.NoError(t, err)

	assert.True(t, summary.PositionsValue.Equal(dec("13500")))
	assert.True(t, summary.TotalValue.Equal(dec("98500")))
	assert.True(t, summary.UnrealizedPnL.Equal(dec("-1500")))
	assert.InDelta(t, -10.0, summary.Positions[0].UnrealizedPnLPct, 1e-9)
	assert.InDelta(t, -1.5, summary.TotalReturnPct, 1e-9)
}

func TestSnapshot_DailyReturn(t *testing.T) {
	agent := &domain.Agent{ID: "a", StartingCapital: dec("100000"), CurrentValue: dec("100000")}
	summary := &domain.PortfolioSummary{TotalValue: dec("101000"), Cash: dec("101000"), TotalReturnPct: 1}

	snap := Snapshot(agent, summary, time.Now())
	assert.InDelta(t, 1.0, snap.DailyReturnPct, 1e-9)
	assert.Equal(t, 1.0, snap.CumulativeReturnPct)

	agent.CurrentValue = decimal.Zero
	assert.Equal(t, 0.0, Snapshot(agent, summary, time.Now()).DailyReturnPct)
}

func TestRefresh_PersistsValue(t *testing.T) {
	f := newFixture(t, "100000", domain.DefaultRiskParams())
	_, err := f.apply(domain.ActionBuy, "AAPL", 100, "150")
	require.NoError(t, err)

	f.oracle.Set("AAPL", dec("170"))
	res, err := f.ledger.Refresh(context.Background(), f.agent.ID)
	require.NoError(t, err)
	assert.True(t, res.Portfolio.TotalValue.Equal(dec("102000")))
	assert.InDelta(t, 2.0, res.Snapshot.DailyReturnPct, 1e-9)
	assert.True(t, f.reload(t).CurrentValue.Equal(dec("102000")))

	history, err := f.ledger.History(context.Background(), f.agent.ID, 30)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.ledger.Refresh(context.Background(), "missing")
	requireCode(t, err, domain.CodeAgentNotFound)
}
