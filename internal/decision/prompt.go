package decision

import (
	"fmt"
	"strings"
	"time"

	"trading-arena/internal/domain"
)

const responseFormat = "```json\n" + `{
  "action": "BUY" | "SELL" | "HOLD",
  "ticker": "SYMBOL",
  "quantity": 10,
  "confidence": 0.0-1.0,
  "reasoning": "Your analysis...",
  "news_summary": "Brief summary of relevant news...",
  "risk_assessment": "Low" | "Medium" | "High"
}` + "\n```"

// SystemPrompt builds the instruction block for an agent.
func SystemPrompt(agent *domain.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %q, a paper-trading agent competing on a public leaderboard.\n\n", agent.Name)
	b.WriteString("## Strategy\n")
	if s := strings.TrimSpace(agent.SystemPrompt); s != "" {
		b.WriteString(s)
	} else {
		b.WriteString("Trade liquid US equities with a balanced, risk-aware approach.")
	}
	b.WriteString("\n\n## Risk limits (enforced)\n")
	fmt.Fprintf(&b, "- Stop loss: %.1f%% per position\n", agent.Risk.StopLossPct)
	fmt.Fprintf(&b, "- Max position size: %.1f%% of portfolio value\n", agent.Risk.MaxPositionPct)
	fmt.Fprintf(&b, "- Max buys per day: %d\n", agent.Risk.MaxTradesPerDay)
	if len(agent.Watchlist) > 0 {
		fmt.Fprintf(&b, "\n## Watchlist\n%s\n", strings.Join(agent.Watchlist, ", "))
	}
	b.WriteString("\n## Response format\nRespond with only this JSON block:\n")
	b.WriteString(responseFormat)
	b.WriteString("\n\nChoose HOLD when no clear opportunity exists. SELL only tickers you hold.")
	return b.String()
}

// PortfolioContext renders the portfolio and recent trades.
func PortfolioContext(summary *domain.PortfolioSummary, trades []*domain.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio value: $%s\n", summary.TotalValue.StringFixed(2))
	fmt.Fprintf(&b, "Cash available: $%s\n\n", summary.Cash.StringFixed(2))

	b.WriteString("Positions:\n")
	if len(summary.Positions) == 0 {
		b.WriteString("- none\n")
	}
	for _, p := range summary.Positions {
		fmt.Fprintf(&b, "- %s: %d shares @ $%s avg (current $%s, %+.2f%%)\n",
			p.Ticker, p.Quantity, p.EntryPrice.StringFixed(2), p.CurrentPrice.StringFixed(2), p.UnrealizedPnLPct)
	}

	b.WriteString("\nRecent trades:\n")
	if len(trades) == 0 {
		b.WriteString("- none\n")
	}
	for i, t := range trades {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- %s %d %s @ $%s on %s\n",
			t.Action, t.Quantity, t.Ticker, t.Price.StringFixed(2), t.CreatedAt.UTC().Format(time.DateOnly))
	}
	return b.String()
}

// NewsContext renders up to ten news items.
func NewsContext(news []NewsItem) string {
	if len(news) == 0 {
		return "No recent news available."
	}
	var b strings.Builder
	for i, n := range news {
		if i == 10 {
			break
		}
		related := ""
		if n.Ticker != "" {
			related = " [" + n.Ticker + "]"
		}
		fmt.Fprintf(&b, "### %d%s %s\nSource: %s | %s\n%s\n\n",
			i+1, related, n.Headline, n.Source, n.PublishedAt.UTC().Format(time.RFC3339), n.Summary)
	}
	return strings.TrimSpace(b.String())
}

// UserPrompt combines portfolio and news into the request message.
func UserPrompt(in *Input) string {
	return "## Current portfolio\n" + PortfolioContext(in.Portfolio, in.RecentTrades) +
		"\n## Recent market news\n" + NewsContext(in.News) +
		"\n\nAnalyze the situation and respond with your trading decision."
}
