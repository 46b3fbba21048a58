package api

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

type agentView struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	LLMModel           string            `json:"llm_model"`
	SystemPrompt       string            `json:"system_prompt,omitempty"`
	Watchlist          []string          `json:"watchlist"`
	RiskParams         domain.RiskParams `json:"risk_params"`
	IsPublic           bool              `json:"is_public"`
	Status             string            `json:"status"`
	StartingCapital    decimal.Decimal   `json:"starting_capital"`
	CashBalance        decimal.Decimal   `json:"cash_balance"`
	CurrentValue       decimal.Decimal   `json:"current_value"`
	TotalReturnPct     float64           `json:"total_return_pct"`
	TotalTrades        int               `json:"total_trades"`
	WinningTrades      int               `json:"winning_trades"`
	WinRate            float64           `json:"win_rate"`
	TotalAPICost       decimal.Decimal   `json:"total_api_cost"`
	AutoExecute        bool              `json:"auto_execute"`
	AutoInterval       string            `json:"auto_interval"`
	NextAutoAnalysisAt *time.Time        `json:"next_auto_analysis_at"`
	LastAnalysisAt     *time.Time        `json:"last_analysis_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// newAgentView hides the system prompt from anyone but the owner.
func newAgentView(a *domain.Agent, owner bool) *agentView {
	v := &agentView{
		ID:                 a.ID,
		UserID:             a.UserID,
		Name:               a.Name,
		Description:        a.Description,
		LLMModel:           a.LLMModel,
		Watchlist:          a.Watchlist,
		RiskParams:         a.Risk,
		IsPublic:           a.IsPublic,
		Status:             string(a.Status),
		StartingCapital:    a.StartingCapital,
		CashBalance:        a.CashBalance,
		CurrentValue:       a.CurrentValue,
		TotalReturnPct:     a.TotalReturnPct,
		TotalTrades:        a.TotalTrades,
		WinningTrades:      a.WinningTrades,
		WinRate:            a.WinRate,
		TotalAPICost:       a.TotalAPICost,
		AutoExecute:        a.AutoExecute,
		AutoInterval:       string(a.AutoInterval),
		NextAutoAnalysisAt: a.NextAutoAnalysisAt,
		LastAnalysisAt:     a.LastAnalysisAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if owner {
		v.SystemPrompt = a.SystemPrompt
	}
	if v.Watchlist == nil {
		v.Watchlist = []string{}
	}
	return v
}

type positionView struct {
	ID          string           `json:"id"`
	AgentID     string           `json:"agent_id"`
	Ticker      string           `json:"ticker"`
	Quantity    int64            `json:"quantity"`
	EntryPrice  decimal.Decimal  `json:"entry_price"`
	CostBasis   decimal.Decimal  `json:"cost_basis"`
	EntryDate   time.Time        `json:"entry_date"`
	Status      string           `json:"status"`
	ExitPrice   *decimal.Decimal `json:"exit_price"`
	ExitDate    *time.Time       `json:"exit_date"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl"`
}

func newPositionView(p *domain.Position) *positionView {
	if p == nil {
		return nil
	}
	return &positionView{
		ID:          p.ID,
		AgentID:     p.AgentID,
		Ticker:      p.Ticker,
		Quantity:    p.Quantity,
		EntryPrice:  p.EntryPrice,
		CostBasis:   p.CostBasis,
		EntryDate:   p.EntryDate,
		Status:      string(p.Status),
		ExitPrice:   p.ExitPrice,
		ExitDate:    p.ExitDate,
		RealizedPnL: p.RealizedPnL,
	}
}

type tradeView struct {
	ID           string           `json:"id"`
	AgentID      string           `json:"agent_id"`
	Action       string           `json:"action"`
	Ticker       string           `json:"ticker"`
	Quantity     int64            `json:"quantity"`
	Price        decimal.Decimal  `json:"price"`
	TotalValue   decimal.Decimal  `json:"total_value"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
	NewsSummary  string           `json:"news_summary,omitempty"`
	RealizedPnL  *decimal.Decimal `json:"realized_pnl"`
	IsProfitable *bool            `json:"is_profitable"`
	APICost      decimal.Decimal  `json:"api_cost"`
	CreatedAt    time.Time        `json:"created_at"`
}

func newTradeView(t *domain.Trade) *tradeView {
	return &tradeView{
		ID:           t.ID,
		AgentID:      t.AgentID,
		Action:       string(t.Action),
		Ticker:       t.Ticker,
		Quantity:     t.Quantity,
		Price:        t.Price,
		TotalValue:   t.TotalValue,
		Confidence:   t.Confidence,
		Reasoning:    t.Reasoning,
		NewsSummary:  t.NewsSummary,
		RealizedPnL:  t.RealizedPnL,
		IsProfitable: t.IsProfitable,
		APICost:      t.APICost,
		CreatedAt:    t.CreatedAt,
	}
}

type holdingView struct {
	Ticker           string          `json:"ticker"`
	Quantity         int64           `json:"quantity"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPct float64         `json:"unrealized_pnl_pct"`
	PriceStale       bool            `json:"price_stale,omitempty"`
	EntryDate        time.Time       `json:"entry_date"`
}

type portfolioView struct {
	AgentID        string          `json:"agent_id"`
	Cash           decimal.Decimal `json:"cash_balance"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalReturnPct float64         `json:"total_return_pct"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	Positions      []holdingView   `json:"positions"`
	AsOf           time.Time       `json:"as_of"`
}

func newPortfolioView(s *domain.PortfolioSummary) *portfolioView {
	if s == nil {
		return nil
	}
	v := &portfolioView{
		AgentID:        s.AgentID,
		Cash:           s.Cash,
		PositionsValue: s.PositionsValue,
		TotalValue:     s.TotalValue,
		TotalReturnPct: s.TotalReturnPct,
		UnrealizedPnL:  s.UnrealizedPnL,
		Positions:      make([]holdingView, 0, len(s.Positions)),
		AsOf:           s.AsOf,
	}
	for _, p := range s.Positions {
		v.Positions = append(v.Positions, holdingView{
			Ticker:           p.Ticker,
			Quantity:         p.Quantity,
			EntryPrice:       p.EntryPrice,
			CostBasis:        p.CostBasis,
			CurrentPrice:     p.CurrentPrice,
			CurrentValue:     p.CurrentValue,
			UnrealizedPnL:    p.UnrealizedPnL,
			UnrealizedPnLPct: p.UnrealizedPnLPct,
			PriceStale:       p.PriceStale,
			EntryDate:        p.EntryDate,
		})
	}
	return v
}

type recommendationView struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id"`
	Action         string          `json:"action"`
	Ticker         string          `json:"ticker,omitempty"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	NewsSummary    string          `json:"news_summary,omitempty"`
	RiskAssessment string          `json:"risk_assessment,omitempty"`
	APICost        decimal.Decimal `json:"api_cost"`
	StopLoss       bool            `json:"stop_loss"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

func newRecommendationView(r *domain.Recommendation) *recommendationView {
	return &recommendationView{
		ID:             r.ID,
		AgentID:        r.AgentID,
		Action:         string(r.Action),
		Ticker:         r.Ticker,
		Quantity:       r.Quantity,
		Price:          r.Price,
		TotalValue:     r.TotalValue,
		Confidence:     r.Confidence,
		Reasoning:      r.Reasoning,
		NewsSummary:    r.NewsSummary,
		RiskAssessment: r.RiskAssessment,
		APICost:        r.APICost,
		StopLoss:       r.Forced,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

type snapshotView struct {
	ID                  string                    `json:"id"`
	TotalValue          decimal.Decimal           `json:"total_value"`
	Cash                decimal.Decimal           `json:"cash"`
	Positions           []domain.SnapshotPosition `json:"positions"`
	DailyReturnPct      float64                   `json:"daily_return_pct"`
	CumulativeReturnPct float64                   `json:"cumulative_return_pct"`
	CreatedAt           time.Time                 `json:"created_at"`
}

func newSnapshotView(s *domain.PortfolioSnapshot) *snapshotView {
	if s == nil {
		return nil
	}
	positions := s.Positions
	if positions == nil {
		positions = []domain.SnapshotPosition{}
	}
	return &snapshotView{
		ID:                  s.ID,
		TotalValue:          s.TotalValue,
		Cash:                s.Cash,
		Positions:           positions,
		DailyReturnPct:      s.DailyReturnPct,
		CumulativeReturnPct: s.CumulativeReturnPct,
		CreatedAt:           s.CreatedAt,
	}
}

type userView struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"display_name"`
	Tier             string    `json:"tier"`
	CreditsRemaining int       `json:"credits_remaining"`
	CreditsResetAt   time.Time `json:"credits_reset_at"`
	TotalAnalyses    int       `json:"total_analyses"`
}

func newUserView(u *domain.User) *userView {
	return &userView{
		ID:               u.ID,
		DisplayName:      u.DisplayName,
		Tier:             string(u.Tier),
		CreditsRemaining: u.CreditsRemaining,
		CreditsResetAt:   u.CreditsResetAt,
		TotalAnalyses:    u.TotalAnalyses,
	}
}
