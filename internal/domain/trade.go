package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is a trading decision.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalizes s into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Executable reports whether the action changes the portfolio.
func (a Action) Executable() bool {
	return a == ActionBuy || a == ActionSell
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Trade is an immutable record of one executed BUY or SELL.
// Corresponds to the trades table in PostgreSQL.
type Trade struct {
	ID          string
	AgentID     string
	Action      Action
	Ticker      string
	Quantity    int64
	Price       decimal.Decimal
	TotalValue  decimal.Decimal // Price * Quantity
	Confidence  float64
	Reasoning   string
	NewsSummary string

	RealizedPnL  *decimal.Decimal // SELL only
	IsProfitable *bool            // SELL only

	APICost    decimal.Decimal // attributed from the recommendation it executed
	RequestKey string          // idempotency key, empty when not supplied

	CreatedAt time.Time
}

// Clone returns a deep copy of the trade.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	if t.RealizedPnL != nil {
		v := *t.RealizedPnL
		c.RealizedPnL = &v
	}
	if t.IsProfitable != nil {
		v := *t.IsProfitable
		c.IsProfitable = &v
	}
	return &c
}
