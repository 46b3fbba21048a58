package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/metrics"
	"trading-arena/internal/storage"
)

const anonymousOwner = "Anonymous"

// Generator produces reports from stored data.
type Generator struct {
	repo storage.Repository
	now  func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(repo storage.Repository) *Generator {
	return &Generator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for public, active agents over the last
// days calendar days (UTC).
func (g *Generator) Generate(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	now := g.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := midnight.AddDate(0, 0, -(days - 1))

	agents, err := g.repo.Agents().ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public agents: %w", err)
	}

	owners := make(map[string]string)
	rows := make([]AgentRow, 0, len(agents))
	for _, a := range agents {
		owner, ok := owners[a.UserID]
		if !ok {
			owner, err = g.ownerName(ctx, a.UserID)
			if err != nil {
				return nil, err
			}
			owners[a.UserID] = owner
		}

		snaps, err := g.repo.Snapshots().ListSince(ctx, a.ID, since)
		if err != nil {
			return nil, fmt.Errorf("list snapshots for %s: %w", a.ID, err)
		}

		rows = append(rows, AgentRow{
			AgentID:        a.ID,
			Name:           a.Name,
			Owner:          owner,
			LLMModel:       a.LLMModel,
			CurrentValue:   a.CurrentValue,
			TotalReturnPct: a.TotalReturnPct,
			WinRate:        a.WinRate,
			TotalTrades:    a.TotalTrades,
			TotalAPICost:   a.TotalAPICost,
			Stats:          metrics.Compute(snaps, a.StartingCapital.InexactFloat64()),
		})
	}

	sortRows(rows)

	return &Report{
		GeneratedAt: now,
		WindowStart: since,
		Days:        days,
		Summary:     summarize(rows),
		Agents:      rows,
	}, nil
}

func (g *Generator) ownerName(ctx context.Context, userID string) (string, error) {
	u, err := g.repo.Users().GetByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return anonymousOwner, nil
	}
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", userID, err)
	}
	if u.DisplayName == "" {
		return anonymousOwner, nil
	}
	return u.DisplayName, nil
}

// sortRows orders by total return DESC, agent id ASC.
func sortRows(rows []AgentRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalReturnPct != rows[j].TotalReturnPct {
			return rows[i].TotalReturnPct > rows[j].TotalReturnPct
		}
		return rows[i].AgentID < rows[j].AgentID
	})
}

// summarize expects rows sorted by sortRows.
func summarize(rows []AgentRow) Summary {
	s := Summary{AgentCount: len(rows), TotalAPICost: decimal.Zero}
	if len(rows) == 0 {
		return s
	}

	returns := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.TotalTrades > 0 {
			s.TradingAgents++
		}
		s.TotalTrades += r.TotalTrades
		s.TotalAPICost = s.TotalAPICost.Add(r.TotalAPICost)
		returns = append(returns, r.TotalReturnPct)
	}
	sort.Float64s(returns)

	n := len(returns)
	if n%2 == 1 {
		s.MedianReturnPct = returns[n/2]
	} else {
		s.MedianReturnPct = (returns[n/2-1] + returns[n/2]) / 2
	}
	s.BestAgentID = rows[0].AgentID
	s.WorstAgentID = rows[n-1].AgentID
	return s
}
