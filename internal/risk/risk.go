// Package risk implements the pure portfolio limit checks applied before a
// trade executes or a recommendation is produced.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CheckStopLoss returns the position with the most negative unrealized
// P&L percent among those at or beyond -stopLossPct, or nil. Ties go to the
// alphabetically first ticker. A non-positive threshold disables the rule.
func CheckStopLoss(positions []domain.PositionValuation, stopLossPct float64) *domain.PositionValuation {
	if stopLossPct <= 0 {
		return nil
	}
	var worst *domain.PositionValuation
	for i := range positions {
		p := &positions[i]
		if p.PriceStale || p.UnrealizedPnLPct > -stopLossPct {
			continue
		}
		switch {
		case worst == nil, p.UnrealizedPnLPct < worst.UnrealizedPnLPct:
			worst = p
		case p.UnrealizedPnLPct == worst.UnrealizedPnLPct && p.Ticker < worst.Ticker:
			worst = p
		}
	}
	return worst
}

// MaxPositionCheck is the outcome of ValidateMaxPositionSize.
type MaxPositionCheck struct {
	Valid      bool
	MaxAllowed decimal.Decimal // total * maxPct / 100
	CurrentPct float64         // (existing + order) / total * 100
}

// ValidateMaxPositionSize reports whether adding orderValue to a holding
// worth existingValue keeps it within maxPct of totalValue.
// With a non-positive total any positive exposure is rejected and
// CurrentPct is reported as 100.
func ValidateMaxPositionSize(totalValue, orderValue, existingValue decimal.Decimal, maxPct float64) MaxPositionCheck {
	maxAllowed := totalValue.Mul(decimal.NewFromFloat(maxPct)).Div(hundred)
	exposure := existingValue.Add(orderValue)

	if !totalValue.IsPositive() {
		return MaxPositionCheck{
			Valid:      !exposure.IsPositive(),
			MaxAllowed: decimal.Zero,
			CurrentPct: 100,
		}
	}

	return MaxPositionCheck{
		Valid:      exposure.LessThanOrEqual(maxAllowed),
		MaxAllowed: maxAllowed,
		CurrentPct: exposure.Div(totalValue).Mul(hundred).InexactFloat64(),
	}
}

// CheckDailyTradeLimit reports whether another trade is allowed given the
// number already executed today.
func CheckDailyTradeLimit(tradesToday, maxPerDay int) bool {
	return tradesToday < maxPerDay
}

// DayStart returns midnight UTC of the calendar day containing t.
// Daily limits reset at this boundary.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SuggestQuantity sizes an order at price.
// BUY: floor(min(cash, total*maxPct/100) / price), at least 1.
// SELL: the requested quantity clamped to held, at least 1.
func SuggestQuantity(action domain.Action, requested, held int64, cash, totalValue, price decimal.Decimal, maxPct float64) int64 {
	switch action {
	case domain.ActionBuy:
		if !price.IsPositive() {
			return 1
		}
		budget := totalValue.Mul(decimal.NewFromFloat(maxPct)).Div(hundred)
		if cash.LessThan(budget) {
			budget = cash
		}
		q := budget.Div(price).Floor().IntPart()
		if requested > 0 && requested < q {
			q = requested
		}
		if q < 1 {
			q = 1
		}
		return q
	case domain.ActionSell:
		q := requested
		if q <= 0 || q > held {
			q = held
		}
		if q < 1 {
			q = 1
		}
		return q
	}
	return requested
}
