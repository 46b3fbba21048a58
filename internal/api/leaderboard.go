package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 200

	sortReturn    = "total_return_pct"
	sortWinRate   = "win_rate"
	sortTrades    = "total_trades"
	sortAPICost   = "total_api_cost"
	anonymousName = "Anonymous"
)

type leaderboardEntry struct {
	Rank            int             `json:"rank"`
	AgentID         string          `json:"agent_id"`
	AgentName       string          `json:"agent_name"`
	UserID          string          `json:"user_id"`
	UserDisplayName string          `json:"user_display_name"`
	TotalReturnPct  float64         `json:"total_return_pct"`
	WinRate         float64         `json:"win_rate"`
	TradeCount      int             `json:"trade_count"`
	TotalAPICost    decimal.Decimal `json:"total_api_cost"`
	IsOwn           bool            `json:"is_own"`
}

type leaderboardResponse struct {
	Leaderboard []leaderboardEntry `json:"leaderboard"`
	UserRank    *leaderboardEntry  `json:"user_rank"`
	TotalAgents int                `json:"total_agents"`
	SortBy      string             `json:"sort_by"`
}

// rankAgents orders agents that have traded by the sort column. API cost
// ranks ascending, every other column descending. Ties keep store order.
func rankAgents(agents []*domain.Agent, sortBy string, limit int) []*domain.Agent {
	ranked := make([]*domain.Agent, 0, len(agents))
	for _, a := range agents {
		if a.IsPublic && a.Status == domain.AgentStatusActive && a.TotalTrades > 0 {
			ranked = append(ranked, a)
		}
	}

	less := func(a, b *domain.Agent) bool { return a.TotalReturnPct > b.TotalReturnPct }
	switch sortBy {
	case sortWinRate:
		less = func(a, b *domain.Agent) bool { return a.WinRate > b.WinRate }
	case sortTrades:
		less = func(a, b *domain.Agent) bool { return a.TotalTrades > b.TotalTrades }
	case sortAPICost:
		less = func(a, b *domain.Agent) bool { return a.TotalAPICost.LessThan(b.TotalAPICost) }
	}
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func leaderboardSort(s string) string {
	switch s {
	case sortWinRate, sortTrades, sortAPICost:
		return s
	}
	return sortReturn
}

// GET /api/leaderboard?sort=total_return_pct&limit=50
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sortBy := leaderboardSort(r.URL.Query().Get("sort"))
	limit, err := intParam(r, "limit", defaultLeaderboardLimit, maxLeaderboardLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	agents, err := s.repo.Agents().ListPublic(r.Context())
	if err != nil {
		s.writeError(w, r, fmt.Errorf("list public agents: %w", err))
		return
	}

	user := currentUser(r.Context())
	names := make(map[string]string)
	resp := leaderboardResponse{SortBy: sortBy, Leaderboard: []leaderboardEntry{}}

	for i, a := range rankAgents(agents, sortBy, limit) {
		name, ok := names[a.UserID]
		if !ok {
			owner, err := s.repo.Users().GetByID(r.Context(), a.UserID)
			switch {
			case err == nil && owner.DisplayName != "":
				name = owner.DisplayName
			case err == nil || errors.Is(err, storage.ErrNotFound):
				name = anonymousName
			default:
				s.writeError(w, r, fmt.Errorf("load user: %w", err))
				return
			}
			names[a.UserID] = name
		}

		resp.Leaderboard = append(resp.Leaderboard, leaderboardEntry{
			Rank:            i + 1,
			AgentID:         a.ID,
			AgentName:       a.Name,
			UserID:          a.UserID,
			UserDisplayName: name,
			TotalReturnPct:  a.TotalReturnPct,
			WinRate:         a.WinRate,
			TradeCount:      a.TotalTrades,
			TotalAPICost:    a.TotalAPICost,
			IsOwn:           a.UserID == user.ID,
		})
	}

	for i := range resp.Leaderboard {
		if resp.Leaderboard[i].IsOwn {
			entry := resp.Leaderboard[i]
			resp.UserRank = &entry
			break
		}
	}
	resp.TotalAgents = len(resp.Leaderboard)
	writeData(w, http.StatusOK, resp)
}
