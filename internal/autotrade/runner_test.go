package autotrade

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-arena/internal/analysis"
	"trading-arena/internal/domain"
	"trading-arena/internal/ledger"
	"trading-arena/internal/pricing"
	"trading-arena/internal/storage/memory"
)

// stubAnalyzer returns a fixed recommendation per agent.
type stubAnalyzer struct {
	recs  map[string]*domain.Recommendation
	errs  map[string]error
	calls []string
}

func (s *stubAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	s.calls = append(s.calls, req.AgentID)
	if err := s.errs[req.AgentID]; err != nil {
		return nil, err
	}
	rec, ok := s.recs[req.AgentID]
	if !ok {
		rec = &domain.Recommendation{ID: "hold-" + req.AgentID, Action: domain.ActionHold}
	}
	return &analysis.Result{Recommendation: rec, Origin: analysis.OriginFresh}, nil
}

type fixture struct {
	runner   *Runner
	repo     *memory.Repository
	ledger   *ledger.Ledger
	analyzer *stubAnalyzer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     memory.NewRepository(),
		analyzer: &stubAnalyzer{recs: map[string]*domain.Recommendation{}, errs: map[string]error{}},
		now:      time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	oracle := pricing.NewStaticOracle(map[string]float64{"AAPL": 150, "MSFT": 100})
	f.ledger = ledger.New(ledger.Options{Repository: f.repo, Oracle: oracle, Now: clock})
	f.runner = NewRunner(RunnerOptions{
		Repository:    f.repo,
		Analyzer:      f.analyzer,
		Executor:      f.ledger,
		MinConfidence: 0.5,
		Now:           clock,
		Logger:        log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	return f
}

func (f *fixture) addAgent(t *testing.T, id string, auto bool, next *time.Time) {
	t.Helper()
	capital := decimal.NewFromInt(100000)
	require.NoError(t, f.repo.Agents().Insert(context.Background(), &domain.Agent{
		ID:                 id,
		UserID:             "user-1",
		Name:               id,
		Risk:               domain.DefaultRiskParams(),
		Status:             domain.AgentStatusActive,
		StartingCapital:    capital,
		CashBalance:        capital,
		CurrentValue:       capital,
		AutoExecute:        auto,
		AutoInterval:       domain.AutoInterval3h,
		NextAutoAnalysisAt: next,
		CreatedAt:          f.now,
	}))
}

func (f *fixture) agent(t *testing.T, id string) *domain.Agent {
	t.Helper()
	a, err := f.repo.Agents().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func at(t time.Time) *time.Time { return &t }

func TestRunner_ExecutesDueRecommendation(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", true, at(f.now.Add(-time.Minute)))
	f.analyzer.recs["a1"] = &domain.Recommendation{
		ID: "rec-1", Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 10,
		Price: decimal.NewFromInt(150), Confidence: 0.8,
	}

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	run := report.Runs[0]
	assert.Equal(t, OutcomeExecuted, run.Outcome)
	require.NotNil(t, run.Trade)
	assert.NotEmpty(t, run.Trade.RequestKey)

	a := f.agent(t, "a1")
	assert.True(t, a.CashBalance.Equal(decimal.NewFromInt(98500)))
	require.NotNil(t, a.NextAutoAnalysisAt)
	assert.Equal(t, f.now.Add(3*time.Hour), *a.NextAutoAnalysisAt)
}

func TestRunner_SkipsAgentsNotDue(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "due", true, nil)
	f.addAgent(t, "later", true, at(f.now.Add(time.Hour)))
	f.addAgent(t, "manual", false, nil)

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"due"}, f.analyzer.calls)
	assert.Equal(t, 1, report.Count(OutcomeHeld))

	assert.Equal(t, f.now.Add(time.Hour), *f.agent(t, "later").NextAutoAnalysisAt)
	assert.Nil(t, f.agent(t, "manual").NextAutoAnalysisAt)
}

func TestRunner_HoldsLowConfidence(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", true, nil)
	f.analyzer.recs["a1"] = &domain.Recommendation{
		ID: "rec-1", Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 10,
		Price: decimal.NewFromInt(150), Confidence: 0.3,
	}

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeHeld, report.Runs[0].Outcome)
	assert.True(t, f.agent(t, "a1").CashBalance.Equal(decimal.NewFromInt(100000)))
}

func TestRunner_ForcedSellIgnoresConfidenceFloor(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", true, nil)
	_, err := f.ledger.ApplyTrade(context.Background(), "a1", ledger.TradeRequest{
		Action: domain.ActionBuy, Ticker: "MSFT", Quantity: 10, Price: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	f.analyzer.recs["a1"] = &domain.Recommendation{
		ID: "stop-1", Action: domain.ActionSell, Ticker: "MSFT", Quantity: 10,
		Price: decimal.NewFromInt(90), Confidence: 0, Forced: true,
	}

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, report.Runs[0].Outcome)
}

func TestRunner_FailuresAdvanceSchedule(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "broke", true, nil)
	f.addAgent(t, "down", true, nil)
	f.addAgent(t, "ok", true, nil)
	f.analyzer.errs["broke"] = domain.NewError(domain.CodeNoCredits, "no credits remaining")
	f.analyzer.errs["down"] = errors.New("connection reset")

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Runs, 3)
	assert.Equal(t, 1, report.Count(OutcomeSkipped))
	assert.Equal(t, 1, report.Count(OutcomeFailed))
	assert.Equal(t, 1, report.Count(OutcomeHeld))

	for _, id := range []string{"broke", "down", "ok"} {
		next := f.agent(t, id).NextAutoAnalysisAt
		require.NotNil(t, next, id)
		assert.Equal(t, f.now.Add(3*time.Hour), *next, id)
	}
}

func TestRunner_RejectedTradeIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", true, nil)
	f.analyzer.recs["a1"] = &domain.Recommendation{
		ID: "rec-1", Action: domain.ActionSell, Ticker: "AAPL", Quantity: 5,
		Price: decimal.NewFromInt(150), Confidence: 0.9,
	}

	report, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Runs[0].Outcome)
	assert.ErrorIs(t, report.Runs[0].Err, domain.ErrPositionNotFound)
}

func TestRunner_SameRecommendationExecutesOnce(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "a1", true, nil)
	f.analyzer.recs["a1"] = &domain.Recommendation{
		ID: "rec-1", Action: domain.ActionBuy, Ticker: "AAPL", Quantity: 10,
		Price: decimal.NewFromInt(150), Confidence: 0.9,
	}

	_, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	f.now = f.now.Add(4 * time.Hour)
	_, err = f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	a := f.agent(t, "a1")
	assert.True(t, a.CashBalance.Equal(decimal.NewFromInt(98500)))
	assert.Equal(t, 1, a.TotalTrades)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.runner.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.runner.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
