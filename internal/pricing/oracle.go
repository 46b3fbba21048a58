// Package pricing resolves current market prices for tickers.
package pricing

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no price can be resolved for a ticker.
var ErrUnavailable = errors.New("price unavailable")

// Oracle returns the current price of a ticker.
type Oracle interface {
	Price(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, ticker string) (decimal.Decimal, error)

// Price calls f.
func (f OracleFunc) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return f(ctx, ticker)
}

// Prices resolves several tickers concurrently. Tickers whose lookup fails
// are absent from the result.
func Prices(ctx context.Context, o Oracle, tickers []string) map[string]decimal.Decimal {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = make(map[string]decimal.Decimal, len(tickers))
	)
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			p, err := o.Price(ctx, ticker)
			if err != nil || !p.IsPositive() {
				return
			}
			mu.Lock()
			result[ticker] = p
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return result
}
