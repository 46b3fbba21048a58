package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"trading-arena/internal/analysis"
	"trading-arena/internal/domain"
	"trading-arena/internal/idhash"
	"trading-arena/internal/ledger"
	"trading-arena/internal/metrics"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
	defaultTradesLimit = 50
	maxTradesLimit     = 500
	maxIdempotencyKey  = 200
)

type executeRequest struct {
	Action       string      `json:"action"`
	Ticker       string      `json:"ticker"`
	Quantity     json.Number `json:"quantity"`
	Price        json.Number `json:"price"`
	EnableAuto   *bool       `json:"enable_auto"`
	AutoInterval string      `json:"auto_interval"`
}

// tradeRequest checks every field before the ledger is involved.
func (req *executeRequest) tradeRequest() (ledger.TradeRequest, error) {
	var out ledger.TradeRequest

	if strings.TrimSpace(req.Action) == "" {
		return out, domain.NewError(domain.CodeInvalidAction, "action is required")
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil || !action.Executable() {
		return out, domain.NewError(domain.CodeInvalidAction, "action must be BUY or SELL")
	}
	out.Action = action

	out.Ticker = domain.NormalizeTicker(req.Ticker)
	if out.Ticker == "" {
		return out, domain.NewError(domain.CodeInvalidTicker, "ticker is required")
	}

	if req.Quantity == "" {
		return out, domain.NewError(domain.CodeInvalidQuantity, "quantity is required")
	}
	qty, err := req.Quantity.Int64()
	if err != nil || qty <= 0 {
		return out, domain.NewError(domain.CodeInvalidQuantity, "quantity must be a positive integer")
	}
	out.Quantity = qty

	if req.Price == "" {
		return out, domain.NewError(domain.CodeInvalidPrice, "price is required")
	}
	price, err := decimal.NewFromString(req.Price.String())
	if err != nil || !price.IsPositive() {
		return out, domain.NewError(domain.CodeInvalidPrice, "price must be a positive number")
	}
	out.Price = price

	if req.EnableAuto != nil || req.AutoInterval != "" {
		interval := domain.AutoInterval(req.AutoInterval)
		if req.AutoInterval != "" && !interval.Valid() {
			return out, domain.NewError(domain.CodeInvalidTrade, "auto_interval must be one of 3h, 10h, 24h")
		}
		out.Auto = &ledger.AutoSettings{Enabled: req.EnableAuto, Interval: interval}
	}
	return out, nil
}

type executeResponse struct {
	Trade       *tradeView       `json:"trade"`
	Position    *positionView    `json:"position"`
	Portfolio   *portfolioView   `json:"portfolio"`
	Agent       *agentView       `json:"agent"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl"`
	Replayed    bool             `json:"replayed"`
}

// POST /api/agents/{id}/execute
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var body executeRequest
	if err := decodeBody(r, &body, domain.CodeInvalidTrade, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := body.tradeRequest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		if len(key) > maxIdempotencyKey {
			s.writeError(w, r, domain.NewError(domain.CodeInvalidTrade, "Idempotency-Key is too long"))
			return
		}
		req.RequestKey = idhash.ComputeRequestKey(agent.ID, key)
	}

	res, err := s.ledger.ApplyTrade(r.Context(), agent.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeData(w, status, executeResponse{
		Trade:       newTradeView(res.Trade),
		Position:    newPositionView(res.Position),
		Portfolio:   newPortfolioView(res.Portfolio),
		Agent:       newAgentView(res.Agent, true),
		RealizedPnL: res.RealizedPnL,
		Replayed:    res.Replayed,
	})
}

type analyzeRequest struct {
	ForceRefresh bool `json:"force_refresh"`
}

type usageView struct {
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
}

type analyzeResponse struct {
	Recommendation   *recommendationView `json:"recommendation"`
	Origin           analysis.Origin     `json:"origin"`
	Cached           bool                `json:"cached"`
	StopLoss         bool                `json:"stop_loss"`
	Charged          bool                `json:"charged"`
	Portfolio        *portfolioView      `json:"portfolio"`
	Usage            *usageView          `json:"usage,omitempty"`
	CreditsRemaining int                 `json:"credits_remaining"`
	NewsCount        int                 `json:"news_count"`
}

// POST /api/agents/{id}/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := decodeBody(r, &body, domain.CodeInvalidRequest, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), analysis.Request{
		UserID:       currentUser(r.Context()).ID,
		AgentID:      r.PathValue("id"),
		ForceRefresh: body.ForceRefresh,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := analyzeResponse{
		Recommendation:   newRecommendationView(res.Recommendation),
		Origin:           res.Origin,
		Cached:           res.Origin == analysis.OriginCached,
		StopLoss:         res.Origin == analysis.OriginStopLoss,
		Charged:          res.Charged(),
		Portfolio:        newPortfolioView(res.Portfolio),
		CreditsRemaining: res.CreditsRemaining,
		NewsCount:        res.NewsCount,
	}
	if res.Usage != nil {
		resp.Usage = &usageView{
			Model:        res.Usage.Model,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			Cost:         res.Usage.Cost,
		}
	}
	writeData(w, http.StatusOK, resp)
}

// GET /api/agents/{id}/refresh returns the live valuation without
// persisting anything.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	agent, owner, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summarize(r.Context(), agent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"agent":     newAgentView(agent, owner),
		"portfolio": newPortfolioView(summary),
	})
}

// POST /api/agents/{id}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ledger.Refresh(r.Context(), agent.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"agent":     newAgentView(res.Agent, true),
		"portfolio": newPortfolioView(res.Portfolio),
		"snapshot":  newSnapshotView(res.Snapshot),
	})
}

type chartPoint struct {
	Timestamp   string          `json:"timestamp"`
	Value       decimal.Decimal `json:"value"`
	ReturnPct   float64         `json:"return_pct"`
	DailyReturn float64         `json:"daily_return"`
}

type historySummary struct {
	StartValue     decimal.Decimal `json:"start_value"`
	EndValue       decimal.Decimal `json:"end_value"`
	TotalReturnPct float64         `json:"total_return_pct"`
	SnapshotCount  int             `json:"snapshot_count"`
	Stats          metrics.Stats   `json:"stats"`
}

// GET /api/agents/{id}/history?days=30
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	days, err := intParam(r, "days", defaultHistoryDays, maxHistoryDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snaps, err := s.ledger.History(r.Context(), agent.ID, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	points := make([]chartPoint, 0, len(snaps)+1)
	for _, snap := range snaps {
		points = append(points, chartPoint{
			Timestamp:   snap.CreatedAt.UTC().Format(timeLayout),
			Value:       snap.TotalValue,
			ReturnPct:   snap.CumulativeReturnPct,
			DailyReturn: snap.DailyReturnPct,
		})
	}
	if len(points) == 0 {
		points = append(points, chartPoint{
			Timestamp: s.now().UTC().Format(timeLayout),
			Value:     agent.StartingCapital,
		})
	}
	last := points[len(points)-1]

	writeData(w, http.StatusOK, map[string]any{
		"snapshots": points,
		"summary": historySummary{
			StartValue:     agent.StartingCapital,
			EndValue:       last.Value,
			TotalReturnPct: last.ReturnPct,
			SnapshotCount:  len(points),
			Stats:          metrics.Compute(snaps, agent.StartingCapital.InexactFloat64()),
		},
	})
}

type performanceView struct {
	Day                 string  `json:"day"`
	Open                float64 `json:"open"`
	High                float64 `json:"high"`
	Low                 float64 `json:"low"`
	Close               float64 `json:"close"`
	CumulativeReturnPct float64 `json:"cumulative_return_pct"`
	Samples             uint64  `json:"samples"`
}

// GET /api/agents/{id}/performance?days=30
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	days, err := intParam(r, "days", defaultHistoryDays, maxHistoryDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	points, err := s.ledger.Performance(r.Context(), agent.ID, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]performanceView, 0, len(points))
	for _, p := range points {
		views = append(views, performanceView{
			Day:                 p.Day.UTC().Format("2006-01-02"),
			Open:                p.OpenValue,
			High:                p.HighValue,
			Low:                 p.LowValue,
			Close:               p.CloseValue,
			CumulativeReturnPct: p.CumulativeReturnPct,
			Samples:             p.Samples,
		})
	}
	writeData(w, http.StatusOK, map[string]any{"days": days, "points": views})
}

// GET /api/agents/{id}/trades?limit=50
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", defaultTradesLimit, maxTradesLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trades, err := s.repo.Trades().ListByAgent(r.Context(), agent.ID, limit)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list trades: %w", err))
		return
	}
	views := make([]*tradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, newTradeView(t))
	}
	writeData(w, http.StatusOK, views)
}

// GET /api/agents/{id}/ws
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.hub.Serve(w, r, agent.ID); err != nil {
		s.logger.Printf("stream %s: %v", agent.ID, err)
	}
}

// GET /api/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.analyzer.Account(r.Context(), currentUser(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newUserView(user))
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// intParam reads a positive integer query parameter, capped at max.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.NewError(domain.CodeInvalidRequest, "%s must be a positive integer", name).With("param", name)
	}
	if n > max {
		n = max
	}
	return n, nil
}
