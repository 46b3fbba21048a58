package pricing

import (
	"context"
	"fmt"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// YahooOracle reads the regular market price from Yahoo Finance.
type YahooOracle struct {
	get func(symbol string) (*finance.Quote, error)
}

// NewYahooOracle creates a Yahoo Finance-backed oracle.
func NewYahooOracle() *YahooOracle {
	return &YahooOracle{get: quote.Get}
}

// Price implements Oracle. The underlying client has no context support,
// so cancellation is honoured only between calls.
func (o *YahooOracle) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	q, err := o.get(ticker)
	if err != nil {
		return decimal.Zero, fmt.Errorf("yahoo: quote %s: %w", ticker, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return decimal.Zero, fmt.Errorf("yahoo: %s: %w", ticker, ErrUnavailable)
	}
	return decimal.NewFromFloat(q.RegularMarketPrice), nil
}
