package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"rank", "agent_id", "name", "owner", "llm_model", "current_value",
	"total_return_pct", "win_rate", "total_trades", "total_api_cost",
	"periods", "mean_return_pct", "stddev_return_pct", "max_drawdown_pct",
	"max_consecutive_losses",
}

// RenderCSV renders the standings as CSV string.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for i, a := range r.Agents {
		rec := []string{
			strconv.Itoa(i + 1),
			a.AgentID,
			a.Name,
			a.Owner,
			a.LLMModel,
			a.CurrentValue.StringFixed(6),
			formatFloat(a.TotalReturnPct),
			formatFloat(a.WinRate),
			strconv.Itoa(a.TotalTrades),
			a.TotalAPICost.StringFixed(6),
			strconv.Itoa(a.Stats.Periods),
			formatFloat(a.Stats.MeanReturnPct),
			formatFloat(a.Stats.StddevReturnPct),
			formatFloat(a.Stats.MaxDrawdownPct),
			strconv.Itoa(a.Stats.MaxConsecutiveLosses),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return sb.String(), w.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
