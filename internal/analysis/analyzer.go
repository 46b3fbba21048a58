// Package analysis turns an agent's portfolio into a trade recommendation.
// A breached stop-loss short-circuits everything else, an active cached
// recommendation is served for free, and only a fresh decision source call
// costs the owner a credit.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/decision"
	"trading-arena/internal/domain"
	"trading-arena/internal/ledger"
	"trading-arena/internal/observability"
	"trading-arena/internal/pricing"
	"trading-arena/internal/recommendation"
	"trading-arena/internal/risk"
	"trading-arena/internal/storage"
)

// Origin tells how a recommendation was produced.
type Origin string

const (
	OriginCached   Origin = "cached"
	OriginFresh    Origin = "fresh"
	OriginStopLoss Origin = "stop_loss"
)

const (
	recentTradesLimit = 5
	newsLookback      = 24 * time.Hour
)

// Request asks for a recommendation for one agent on behalf of its owner.
type Request struct {
	UserID       string
	AgentID      string
	ForceRefresh bool
}

// Result is the outcome of an analysis.
type Result struct {
	Recommendation   *domain.Recommendation
	Origin           Origin
	Portfolio        *domain.PortfolioSummary
	Usage            *decision.Usage // nil unless the decision source ran
	CreditsRemaining int
	NewsCount        int
}

// Charged reports whether the analysis consumed a credit.
func (r *Result) Charged() bool {
	return r.Origin == OriginFresh
}

// Analyzer runs the analysis flow.
type Analyzer struct {
	repo            storage.Repository
	ledger          *ledger.Ledger
	oracle          pricing.Oracle
	source          decision.Source
	news            decision.NewsProvider
	cache           *recommendation.Cache
	credits         Credits
	decisionTimeout time.Duration
	priceTimeout    time.Duration
	now             func() time.Time
	logger          *log.Logger
}

// Options for creating an Analyzer.
type Options struct {
	// Required
	Repository storage.Repository
	Ledger     *ledger.Ledger
	Oracle     pricing.Oracle
	Source     decision.Source

	// Optional
	News            decision.NewsProvider
	Cache           *recommendation.Cache // defaults to a cache over Repository.Recommendations()
	Credits         Credits               // defaults to DefaultCredits()
	DecisionTimeout time.Duration         // default 60s
	PriceTimeout    time.Duration         // default 10s
	Now             func() time.Time
	Logger          *log.Logger
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	a := &Analyzer{
		repo:            opts.Repository,
		ledger:          opts.Ledger,
		oracle:          opts.Oracle,
		source:          opts.Source,
		news:            opts.News,
		cache:           opts.Cache,
		credits:         opts.Credits,
		decisionTimeout: opts.DecisionTimeout,
		priceTimeout:    opts.PriceTimeout,
		now:             opts.Now,
		logger:          opts.Logger,
	}
	if a.cache == nil {
		a.cache = recommendation.NewCache(opts.Repository.Recommendations(), 0)
	}
	if a.credits == nil {
		a.credits = DefaultCredits()
	}
	if a.decisionTimeout <= 0 {
		a.decisionTimeout = 60 * time.Second
	}
	if a.priceTimeout <= 0 {
		a.priceTimeout = 10 * time.Second
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	return a
}

// Analyze produces a recommendation for the agent.
//
// Order of precedence: stop-loss forced SELL, active cached recommendation
// (unless ForceRefresh), then a fresh decision source call which consumes
// one credit. A fresh call that fails refunds the credit.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	agent, err := a.loadOwnedAgent(ctx, req.UserID, req.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != domain.AgentStatusActive {
		return nil, domain.NewError(domain.CodeAgentInactive, "agent is %s, activate it first", agent.Status)
	}

	user, err := a.repo.Users().GetByID(ctx, agent.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NewError(domain.CodeUnauthorized, "user %s not found", agent.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	now := a.now().UTC()
	if user, err = refreshCredits(ctx, a.repo.Users(), a.credits, user, now); err != nil {
		return nil, err
	}

	summary, err := a.ledger.Summarize(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("summarize portfolio: %w", err)
	}

	active, err := a.cache.GetActive(ctx, agent.ID)
	if err != nil {
		return nil, err
	}

	if breached := risk.CheckStopLoss(summary.Positions, agent.Risk.StopLossPct); breached != nil {
		res, err := a.stopLoss(ctx, agent, breached, active)
		if err != nil {
			return nil, err
		}
		res.Portfolio = summary
		res.CreditsRemaining = user.CreditsRemaining
		observability.RecordAnalysis(string(OriginStopLoss))
		return res, nil
	}

	if active != nil && !active.Forced && !req.ForceRefresh {
		observability.RecordAnalysis(string(OriginCached))
		return &Result{
			Recommendation:   active,
			Origin:           OriginCached,
			Portfolio:        summary,
			CreditsRemaining: user.CreditsRemaining,
		}, nil
	}

	tradesToday, err := a.repo.Trades().CountSince(ctx, agent.ID, risk.DayStart(now))
	if err != nil {
		return nil, fmt.Errorf("count trades: %w", err)
	}
	if !risk.CheckDailyTradeLimit(tradesToday, agent.Risk.MaxTradesPerDay) {
		return nil, domain.NewError(domain.CodeTradeLimitReached, "daily trade limit of %d reached", agent.Risk.MaxTradesPerDay).
			With("trades_today", tradesToday).
			With("max_trades_per_day", agent.Risk.MaxTradesPerDay)
	}

	if user, err = consumeCredit(ctx, a.repo.Users(), user); err != nil {
		return nil, err
	}
	observability.RecordCreditConsumed()

	res, err := a.fresh(ctx, agent, summary)
	if err != nil {
		if rerr := a.repo.Users().RefundCredit(context.WithoutCancel(ctx), user.ID); rerr != nil {
			a.logger.Printf("refund credit for %s failed: %v", user.ID, rerr)
		} else {
			observability.RecordCreditRefunded()
		}
		return nil, err
	}
	res.Portfolio = summary
	res.CreditsRemaining = user.CreditsRemaining
	observability.RecordAnalysis(string(OriginFresh))
	return res, nil
}

// stopLoss returns the forced SELL for the breached position, reusing an
// active forced recommendation for the same ticker and quantity. A new
// forced SELL supersedes every other active recommendation of the agent.
func (a *Analyzer) stopLoss(ctx context.Context, agent *domain.Agent, p *domain.PositionValuation, active *domain.Recommendation) (*Result, error) {
	if reusable(active, p) {
		return &Result{Recommendation: active, Origin: OriginStopLoss}, nil
	}

	var (
		rec    *domain.Recommendation
		stored bool
	)
	err := a.repo.InAgentTx(ctx, agent.ID, func(ctx context.Context, tx storage.Repository) error {
		cache := a.cache.Bind(tx.Recommendations())
		current, err := cache.GetActive(ctx, agent.ID)
		if err != nil {
			return err
		}
		if reusable(current, p) {
			rec = current
			return nil
		}

		rec, err = cache.Supersede(ctx, agent.ID, &domain.Recommendation{
			Action:     domain.ActionSell,
			Ticker:     p.Ticker,
			Quantity:   p.Quantity,
			Price:      p.CurrentPrice,
			Confidence: 1,
			Reasoning: fmt.Sprintf("Stop-loss triggered: %s is down %.2f%%, beyond the %.2f%% limit.",
				p.Ticker, -p.UnrealizedPnLPct, agent.Risk.StopLossPct),
			RiskAssessment: "High",
			APICost:        decimal.Zero,
			Forced:         true,
		}, 0)
		stored = err == nil
		return err
	})
	if err != nil {
		return nil, err
	}
	if stored {
		observability.RecordRecommendationSaved()
		a.logger.Printf("agent %s: stop-loss SELL %d %s at %s", agent.ID, p.Quantity, p.Ticker, p.CurrentPrice.StringFixed(2))
	}
	return &Result{Recommendation: rec, Origin: OriginStopLoss}, nil
}

func reusable(rec *domain.Recommendation, p *domain.PositionValuation) bool {
	return rec != nil && rec.Forced && rec.Ticker == p.Ticker && rec.Quantity == p.Quantity
}

// fresh calls the decision source and stores its validated proposal.
func (a *Analyzer) fresh(ctx context.Context, agent *domain.Agent, summary *domain.PortfolioSummary) (*Result, error) {
	recent, err := a.repo.Trades().ListByAgent(ctx, agent.ID, recentTradesLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent trades: %w", err)
	}

	in := &decision.Input{Agent: agent, Portfolio: summary, RecentTrades: recent}
	if a.news != nil {
		news, err := a.news.News(ctx, newsTickers(agent, summary), a.now().Add(-newsLookback))
		if err != nil {
			a.logger.Printf("agent %s: news unavailable: %v", agent.ID, err)
		}
		in.News = news
	}

	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, a.decisionTimeout)
	out, err := a.source.Propose(dctx, in)
	cancel()
	if err != nil {
		return nil, domain.NewError(domain.CodeDecisionSource, "decision source failed: %v", err)
	}
	observability.RecordDecision(time.Since(start).Seconds(), out.Usage.Cost.InexactFloat64())

	d, err := decision.Normalize(out.Proposal)
	if err != nil {
		return nil, domain.NewError(domain.CodeDecisionSource, "%v", err)
	}

	// A SELL of something not held cannot execute.
	held, isHeld := summary.Holding(d.Ticker)
	if d.Action == domain.ActionSell && !isHeld {
		d.Reasoning = fmt.Sprintf("%s (no open %s position to sell)", d.Reasoning, d.Ticker)
		d.Action = domain.ActionHold
	}

	rec := &domain.Recommendation{
		Action:         d.Action,
		Ticker:         d.Ticker,
		Confidence:     d.Confidence,
		Reasoning:      d.Reasoning,
		NewsSummary:    d.NewsSummary,
		RiskAssessment: d.RiskAssessment,
		APICost:        out.Usage.Cost,
	}

	if d.Action.Executable() {
		pctx, cancel := context.WithTimeout(ctx, a.priceTimeout)
		price, err := a.oracle.Price(pctx, d.Ticker)
		cancel()
		if err != nil {
			return nil, domain.NewError(domain.CodePriceUnavailable, "no price for %s: %v", d.Ticker, err).
				With("ticker", d.Ticker)
		}
		var heldQty int64
		if held != nil {
			heldQty = held.Quantity
		}
		rec.Price = price
		rec.Quantity = risk.SuggestQuantity(d.Action, d.Quantity, heldQty, summary.Cash, summary.TotalValue, price, agent.Risk.MaxPositionPct)
	}

	stored, err := a.cache.Store(ctx, agent.ID, rec, 0)
	if err != nil {
		return nil, err
	}
	observability.RecordRecommendationSaved()

	if err := a.recordUsage(ctx, agent.ID, out.Usage.Cost); err != nil {
		return nil, err
	}

	a.logger.Printf("agent %s: %s %d %s (confidence %.2f, cost $%s)",
		agent.ID, stored.Action, stored.Quantity, stored.Ticker, stored.Confidence, out.Usage.Cost.StringFixed(4))
	return &Result{
		Recommendation: stored,
		Origin:         OriginFresh,
		Usage:          &out.Usage,
		NewsCount:      len(in.News),
	}, nil
}

// recordUsage adds the call cost to the agent and stamps the analysis time.
func (a *Analyzer) recordUsage(ctx context.Context, agentID string, cost decimal.Decimal) error {
	now := a.now().UTC()
	err := a.repo.InAgentTx(ctx, agentID, func(ctx context.Context, tx storage.Repository) error {
		agent, err := tx.Agents().GetByID(ctx, agentID)
		if err != nil {
			return err
		}
		agent.TotalAPICost = agent.TotalAPICost.Add(cost)
		agent.LastAnalysisAt = &now
		agent.UpdatedAt = now
		return tx.Agents().Update(ctx, agent)
	})
	if err != nil {
		return fmt.Errorf("record api usage: %w", err)
	}
	return nil
}

func (a *Analyzer) loadOwnedAgent(ctx context.Context, userID, agentID string) (*domain.Agent, error) {
	agent, err := a.repo.Agents().GetByID(ctx, agentID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && agent.UserID != userID) {
		return nil, domain.NewError(domain.CodeAgentNotFound, "agent %s not found", agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	return agent, nil
}

// newsTickers is the watchlist plus held tickers, deduplicated.
func newsTickers(agent *domain.Agent, summary *domain.PortfolioSummary) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		t = domain.NormalizeTicker(t)
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range agent.Watchlist {
		add(t)
	}
	for _, p := range summary.Positions {
		add(p.Ticker)
	}
	return out
}
