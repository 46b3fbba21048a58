package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Arena Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %s to %s (%d days)\n\n",
		r.WindowStart.Format("2006-01-02"), r.GeneratedAt.Format("2006-01-02"), r.Days))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Public Agents | %d |\n", r.Summary.AgentCount))
	sb.WriteString(fmt.Sprintf("| Trading Agents | %d |\n", r.Summary.TradingAgents))
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", r.Summary.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Total API Cost | $%s |\n", r.Summary.TotalAPICost.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("| Median Return | %.2f%% |\n", r.Summary.MedianReturnPct))
	if r.Summary.BestAgentID != "" {
		sb.WriteString(fmt.Sprintf("| Best Agent | %s |\n", r.Summary.BestAgentID))
		sb.WriteString(fmt.Sprintf("| Worst Agent | %s |\n", r.Summary.WorstAgentID))
	}
	sb.WriteString("\n")

	sb.WriteString("## Standings\n\n")
	if len(r.Agents) == 0 {
		sb.WriteString("No public agents.\n\n")
		return sb.String()
	}
	sb.WriteString("| # | Agent | Owner | Model | Value | Return% | WinRate | Trades | API Cost |\n")
	sb.WriteString("|---|-------|-------|-------|-------|---------|---------|--------|----------|\n")
	for i, a := range r.Agents {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | $%s | %.2f | %.4f | %d | $%s |\n",
			i+1, escape(a.Name), escape(a.Owner), a.LLMModel,
			a.CurrentValue.StringFixed(2), a.TotalReturnPct, a.WinRate, a.TotalTrades,
			a.TotalAPICost.StringFixed(4)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Window Statistics\n\n")
	sb.WriteString("| Agent | Periods | Up | Down | Mean% | Median% | Stddev% | Best% | Worst% | MaxDD% | MaxLoss |\n")
	sb.WriteString("|-------|---------|----|------|-------|---------|---------|-------|--------|--------|---------|\n")
	for _, a := range r.Agents {
		s := a.Stats
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d |\n",
			escape(a.Name), s.Periods, s.UpPeriods, s.DownPeriods,
			s.MeanReturnPct, s.MedianReturnPct, s.StddevReturnPct,
			s.BestReturnPct, s.WorstReturnPct, s.MaxDrawdownPct, s.MaxConsecutiveLosses))
	}
	sb.WriteString("\n")

	return sb.String()
}

// escape keeps user-supplied names from breaking the table.
func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
