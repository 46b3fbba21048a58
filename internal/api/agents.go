package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/ledger"
	"trading-arena/internal/storage"
)

const (
	maxNameLen      = 100
	maxWatchlistLen = 50
)

type riskInput struct {
	StopLossPct     *float64 `json:"stop_loss_pct"`
	MaxPositionPct  *float64 `json:"max_position_pct"`
	MaxTradesPerDay *int     `json:"max_trades_per_day"`
}

// merge overlays the supplied fields onto base.
func (in *riskInput) merge(base domain.RiskParams) domain.RiskParams {
	if in == nil {
		return base
	}
	if in.StopLossPct != nil {
		base.StopLossPct = *in.StopLossPct
	}
	if in.MaxPositionPct != nil {
		base.MaxPositionPct = *in.MaxPositionPct
	}
	if in.MaxTradesPerDay != nil {
		base.MaxTradesPerDay = *in.MaxTradesPerDay
	}
	return base
}

type createAgentRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	LLMModel        string           `json:"llm_model"`
	SystemPrompt    string           `json:"system_prompt"`
	Watchlist       []string         `json:"watchlist"`
	RiskParams      *riskInput       `json:"risk_params"`
	IsPublic        bool             `json:"is_public"`
	StartingCapital *decimal.Decimal `json:"starting_capital"`
	AutoExecute     bool             `json:"auto_execute"`
	AutoInterval    string           `json:"auto_interval"`
}

type updateAgentRequest struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	LLMModel     *string    `json:"llm_model"`
	SystemPrompt *string    `json:"system_prompt"`
	Watchlist    []string   `json:"watchlist"`
	RiskParams   *riskInput `json:"risk_params"`
	IsPublic     *bool      `json:"is_public"`
	Status       *string    `json:"status"`
	AutoExecute  *bool      `json:"auto_execute"`
	AutoInterval *string    `json:"auto_interval"`
}

func invalidAgent(format string, args ...any) error {
	return domain.NewError(domain.CodeInvalidAgent, format, args...)
}

func normalizeWatchlist(in []string) ([]string, error) {
	if len(in) > maxWatchlistLen {
		return nil, invalidAgent("watchlist may hold at most %d tickers", maxWatchlistLen)
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = domain.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		if len(t) > 10 {
			return nil, invalidAgent("watchlist ticker %q is too long", t)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidAgent("agent name is required")
	}
	if len(name) > maxNameLen {
		return "", invalidAgent("agent name must be at most %d characters", maxNameLen)
	}
	return name, nil
}

func parseInterval(s string) (domain.AutoInterval, error) {
	if s == "" {
		return domain.AutoInterval24h, nil
	}
	i := domain.AutoInterval(s)
	if !i.Valid() {
		return "", invalidAgent("auto_interval must be one of 3h, 10h, 24h")
	}
	return i, nil
}

// GET /api/agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	agents, err := s.repo.Agents().ListByUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list agents: %w", err))
		return
	}
	views := make([]*agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, newAgentView(a, true))
	}
	writeData(w, http.StatusOK, views)
}

// POST /api/agents
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeBody(r, &req, domain.CodeInvalidAgent, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	agent, err := s.newAgent(currentUser(r.Context()), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.repo.Agents().Insert(r.Context(), agent); err != nil {
		s.writeError(w, r, fmt.Errorf("insert agent: %w", err))
		return
	}

	s.logger.Printf("user %s created agent %s (%s)", agent.UserID, agent.ID, agent.Name)
	writeData(w, http.StatusCreated, newAgentView(agent, true))
}

func (s *Server) newAgent(user *domain.User, req *createAgentRequest) (*domain.Agent, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.SystemPrompt)
	if prompt == "" {
		return nil, invalidAgent("system prompt is required")
	}
	model := req.LLMModel
	if model == "" {
		model = s.policy.DefaultModel
	}
	if !s.policy.allows(model) {
		return nil, invalidAgent("llm model %q is not allowed", model)
	}
	riskParams := req.RiskParams.merge(s.policy.DefaultRisk)
	if err := riskParams.Validate(); err != nil {
		return nil, invalidAgent("risk_params: %v", err)
	}
	capital := s.policy.StartingCapital
	if req.StartingCapital != nil {
		capital = *req.StartingCapital
	}
	if !capital.IsPositive() {
		return nil, invalidAgent("starting_capital must be positive")
	}
	watchlist, err := normalizeWatchlist(req.Watchlist)
	if err != nil {
		return nil, err
	}
	interval, err := parseInterval(req.AutoInterval)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	capital = capital.Round(6)
	agent := &domain.Agent{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		LLMModel:        model,
		SystemPrompt:    prompt,
		Watchlist:       watchlist,
		Risk:            riskParams,
		IsPublic:        req.IsPublic,
		Status:          domain.AgentStatusActive,
		StartingCapital: capital,
		CashBalance:     capital,
		CurrentValue:    capital,
		TotalAPICost:    decimal.Zero,
		AutoInterval:    interval,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	enabled := req.AutoExecute
	(&ledger.AutoSettings{Enabled: &enabled, Interval: interval}).Apply(agent, now)
	return agent, nil
}

// GET /api/agents/{id}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, owner, err := s.agentFor(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newAgentView(agent, owner))
}

// PATCH /api/agents/{id}
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.agentFor(r, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateAgentRequest
	if err := decodeBody(r, &req, domain.CodeInvalidAgent, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	var updated *domain.Agent
	err := s.repo.InAgentTx(r.Context(), r.PathValue("id"), func(ctx context.Context, tx storage.Repository) error {
		agent, err := tx.Agents().GetByID(ctx, r.PathValue("id"))
		if err != nil {
			return err
		}
		if err := s.applyUpdate(agent, &req); err != nil {
			return err
		}
		if err := tx.Agents().Update(ctx, agent); err != nil {
			return fmt.Errorf("update agent: %w", err)
		}
		updated = agent
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		err = domain.NewError(domain.CodeAgentNotFound, "agent not found")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, newAgentView(updated, true))
}

func (s *Server) applyUpdate(agent *domain.Agent, req *updateAgentRequest) error {
	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return err
		}
		agent.Name = name
	}
	if req.Description != nil {
		agent.Description = strings.TrimSpace(*req.Description)
	}
	if req.LLMModel != nil {
		if !s.policy.allows(*req.LLMModel) {
			return invalidAgent("llm model %q is not allowed", *req.LLMModel)
		}
		agent.LLMModel = *req.LLMModel
	}
	if req.SystemPrompt != nil {
		prompt := strings.TrimSpace(*req.SystemPrompt)
		if prompt == "" {
			return invalidAgent("system prompt cannot be empty")
		}
		agent.SystemPrompt = prompt
	}
	if req.Watchlist != nil {
		watchlist, err := normalizeWatchlist(req.Watchlist)
		if err != nil {
			return err
		}
		agent.Watchlist = watchlist
	}
	if req.RiskParams != nil {
		params := req.RiskParams.merge(agent.Risk)
		if err := params.Validate(); err != nil {
			return invalidAgent("risk_params: %v", err)
		}
		agent.Risk = params
	}
	if req.IsPublic != nil {
		agent.IsPublic = *req.IsPublic
	}
	if req.Status != nil {
		status := domain.AgentStatus(*req.Status)
		if !status.Valid() {
			return invalidAgent("status must be active, paused or archived")
		}
		agent.Status = status
	}

	now := s.now().UTC()
	if req.AutoExecute != nil || req.AutoInterval != nil {
		auto := &ledger.AutoSettings{Enabled: req.AutoExecute}
		if req.AutoInterval != nil {
			interval, err := parseInterval(*req.AutoInterval)
			if err != nil {
				return err
			}
			auto.Interval = interval
		}
		auto.Apply(agent, now)
	}
	agent.UpdatedAt = now
	return nil
}

// DELETE /api/agents/{id}
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agent, _, err := s.agentFor(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.repo.InAgentTx(r.Context(), agent.ID, func(ctx context.Context, tx storage.Repository) error {
		return tx.Agents().Delete(ctx, agent.ID)
	})
	if errors.Is(err, storage.ErrNotFound) {
		err = domain.NewError(domain.CodeAgentNotFound, "agent not found")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Printf("user %s deleted agent %s", agent.UserID, agent.ID)
	writeData(w, http.StatusOK, map[string]string{"id": agent.ID})
}

// agentFor loads the agent named in the path for the current user. Public
// agents are readable by anyone; writes to them by others are forbidden.
// Private agents of other users are reported as not found.
func (s *Server) agentFor(r *http.Request, write bool) (*domain.Agent, bool, error) {
	id := r.PathValue("id")
	agent, err := s.repo.Agents().GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, domain.NewError(domain.CodeAgentNotFound, "agent %s not found", id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("load agent: %w", err)
	}

	user := currentUser(r.Context())
	switch {
	case agent.UserID == user.ID:
		return agent, true, nil
	case agent.IsPublic && !write:
		return agent, false, nil
	case agent.IsPublic:
		return nil, false, domain.NewError(domain.CodeForbidden, "agent %s belongs to another user", id)
	}
	return nil, false, domain.NewError(domain.CodeAgentNotFound, "agent %s not found", id)
}
