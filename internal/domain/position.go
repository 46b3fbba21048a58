package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the open/closed state of a holding.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is a holding of one ticker by one agent.
// At most one open position exists per (AgentID, Ticker).
type Position struct {
	ID         string
	AgentID    string
	Ticker     string
	Quantity   int64
	EntryPrice decimal.Decimal // weighted-average price of the remaining shares
	CostBasis  decimal.Decimal // total cost of the remaining shares
	EntryDate  time.Time
	Status     PositionStatus

	ExitPrice   *decimal.Decimal // set on close
	ExitDate    *time.Time       // set on close
	RealizedPnL *decimal.Decimal // P&L of the closing sale

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOpen reports whether the position still holds shares.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	if p.ExitPrice != nil {
		v := *p.ExitPrice
		c.ExitPrice = &v
	}
	if p.ExitDate != nil {
		t := *p.ExitDate
		c.ExitDate = &t
	}
	if p.RealizedPnL != nil {
		v := *p.RealizedPnL
		c.RealizedPnL = &v
	}
	return &c
}
