// Package metrics derives return statistics from an agent's snapshot series.
package metrics

import (
	"math"
	"sort"

	"trading-arena/internal/domain"
)

// Stats summarizes the daily returns of a snapshot series.
// Percentages are in percent points, as stored on snapshots.
type Stats struct {
	Periods              int     `json:"periods"`
	UpPeriods            int     `json:"up_periods"`
	DownPeriods          int     `json:"down_periods"`
	MeanReturnPct        float64 `json:"mean_return_pct"`
	MedianReturnPct      float64 `json:"median_return_pct"`
	StddevReturnPct      float64 `json:"stddev_return_pct"`
	BestReturnPct        float64 `json:"best_return_pct"`
	WorstReturnPct       float64 `json:"worst_return_pct"`
	P10ReturnPct         float64 `json:"p10_return_pct"`
	P90ReturnPct         float64 `json:"p90_return_pct"`
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// Compute builds Stats from snapshots. The drawdown peak starts at
// startingValue so a series that never recovers its capital still counts.
// Snapshots are ordered by CreatedAt ASC, ID ASC before order-dependent
// figures are taken; the input slice is not modified.
func Compute(snaps []*domain.PortfolioSnapshot, startingValue float64) Stats {
	n := len(snaps)
	if n == 0 {
		return Stats{}
	}

	ordered := make([]*domain.PortfolioSnapshot, n)
	copy(ordered, snaps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	returns := make([]float64, n)
	values := make([]float64, n)
	up, down := 0, 0
	for i, s := range ordered {
		returns[i] = s.DailyReturnPct
		values[i] = s.TotalValue.InexactFloat64()
		switch {
		case s.DailyReturnPct > 0:
			up++
		case s.DailyReturnPct < 0:
			down++
		}
	}

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	m := mean(returns)
	return Stats{
		Periods:              n,
		UpPeriods:            up,
		DownPeriods:          down,
		MeanReturnPct:        m,
		MedianReturnPct:      percentile(sorted, 0.50),
		StddevReturnPct:      stddev(returns, m),
		BestReturnPct:        sorted[n-1],
		WorstReturnPct:       sorted[0],
		P10ReturnPct:         percentile(sorted, 0.10),
		P90ReturnPct:         percentile(sorted, 0.90),
		MaxDrawdownPct:       maxDrawdownPct(values, startingValue),
		MaxConsecutiveLosses: maxConsecutiveLosses(returns),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// percentile interpolates linearly between closest ranks.
// sorted must be ascending.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// maxDrawdownPct is the worst peak-to-trough fall of the equity curve,
// as a percentage of the peak. Values must be chronological.
func maxDrawdownPct(values []float64, start float64) float64 {
	peak := start
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// maxConsecutiveLosses is the longest run of negative returns.
func maxConsecutiveLosses(returns []float64) int {
	longest, current := 0, 0
	for _, r := range returns {
		if r < 0 {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}
