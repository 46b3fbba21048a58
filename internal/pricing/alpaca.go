package pricing

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaConfig configures AlpacaOracle.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// AlpacaOracle reads the latest IEX quote from Alpaca market data.
type AlpacaOracle struct {
	client *marketdata.Client
}

// NewAlpacaOracle creates an Alpaca-backed oracle.
func NewAlpacaOracle(cfg AlpacaConfig) *AlpacaOracle {
	return &AlpacaOracle{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
	}
}

// Price implements Oracle. The ask price is used; a quote with no
// two-sided market is treated as unavailable.
func (o *AlpacaOracle) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	quotes, err := o.client.GetLatestQuotes([]string{ticker}, marketdata.GetLatestQuoteRequest{
		Feed: marketdata.IEX,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca: latest quote %s: %w", ticker, err)
	}

	q, ok := quotes[ticker]
	if !ok || q.AskPrice <= 0 || q.BidPrice <= 0 {
		return decimal.Zero, fmt.Errorf("alpaca: %s: %w", ticker, ErrUnavailable)
	}
	return decimal.NewFromFloat(q.AskPrice), nil
}
