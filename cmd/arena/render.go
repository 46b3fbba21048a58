package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"trading-arena/internal/autotrade"
	"trading-arena/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	gainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	lossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func pct(v float64) string {
	s := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return gainStyle.Render(s)
	case v < 0:
		return lossStyle.Render(s)
	}
	return s
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func renderLeaderboard(agents []*domain.Agent) string {
	if len(agents) == 0 {
		return mutedStyle.Render("no public agents yet")
	}
	t := newTable("#", "Agent", "Return", "Win rate", "Trades", "Value", "API cost")
	for i, a := range agents {
		t.Row(
			fmt.Sprint(i+1),
			a.Name,
			pct(a.TotalReturnPct),
			fmt.Sprintf("%.0f%%", a.WinRate*100),
			fmt.Sprint(a.TotalTrades),
			money(a.CurrentValue),
			"$"+a.TotalAPICost.StringFixed(4),
		)
	}
	return titleStyle.Render("Leaderboard") + "\n" + t.String()
}

func renderPortfolio(agent *domain.Agent, s *domain.PortfolioSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", agent.Name, agent.ID)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Cash %s   Positions %s   Total %s   Return %s\n",
		money(s.Cash), money(s.PositionsValue), money(s.TotalValue), pct(s.TotalReturnPct))

	if len(s.Positions) == 0 {
		b.WriteString(mutedStyle.Render("no open positions"))
		return b.String()
	}
	t := newTable("Ticker", "Qty", "Entry", "Price", "Value", "P&L")
	for _, p := range s.Positions {
		price := money(p.CurrentPrice)
		if p.PriceStale {
			price = warnStyle.Render(price + " (stale)")
		}
		t.Row(
			p.Ticker,
			fmt.Sprint(p.Quantity),
			money(p.EntryPrice),
			price,
			money(p.CurrentValue),
			pct(p.UnrealizedPnLPct),
		)
	}
	b.WriteString(t.String())
	return b.String()
}

func renderReport(r *autotrade.Report) string {
	if len(r.Runs) == 0 {
		return mutedStyle.Render("no agents due")
	}
	t := newTable("Agent", "Outcome", "Detail")
	for _, run := range r.Runs {
		outcome := string(run.Outcome)
		switch run.Outcome {
		case autotrade.OutcomeExecuted:
			outcome = okStyle.Render(outcome)
		case autotrade.OutcomeFailed:
			outcome = errorStyle.Render(outcome)
		case autotrade.OutcomeSkipped:
			outcome = warnStyle.Render(outcome)
		}
		t.Row(run.AgentID, outcome, runDetail(run))
	}
	summary := fmt.Sprintf("%d executed, %d held, %d skipped, %d failed in %s",
		r.Count(autotrade.OutcomeExecuted), r.Count(autotrade.OutcomeHeld),
		r.Count(autotrade.OutcomeSkipped), r.Count(autotrade.OutcomeFailed),
		r.Duration.Round(time.Millisecond))
	return t.String() + "\n" + summary
}

func runDetail(run autotrade.AgentRun) string {
	switch {
	case run.Err != nil:
		return run.Err.Error()
	case run.Trade != nil:
		return fmt.Sprintf("%s %d %s @ %s", run.Trade.Action, run.Trade.Quantity, run.Trade.Ticker, money(run.Trade.Price))
	case run.Recommendation != nil:
		return fmt.Sprintf("%s %s (confidence %.2f)", run.Recommendation.Action, run.Recommendation.Ticker, run.Recommendation.Confidence)
	}
	return ""
}

func renderUser(u *domain.User, token string) string {
	var b strings.Builder
	b.WriteString(okStyle.Render("user created"))
	fmt.Fprintf(&b, "\nid       %s\nname     %s\ntier     %s\ncredits  %d\n", u.ID, u.DisplayName, u.Tier, u.CreditsRemaining)
	fmt.Fprintf(&b, "token    %s\n", token)
	b.WriteString(mutedStyle.Render("the token is shown once; store it now"))
	return b.String()
}
