package pricing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const defaultFinnhubURL = "https://finnhub.io/api/v1"

// FinnhubConfig configures FinnhubOracle.
type FinnhubConfig struct {
	APIKey             string
	BaseURL            string
	Timeout            time.Duration
	RateLimitPerMinute int
}

// FinnhubOracle reads the last traded price from the Finnhub quote endpoint.
type FinnhubOracle struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
}

type finnhubQuote struct {
	Current       float64 `json:"c"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// NewFinnhubOracle creates a Finnhub-backed oracle.
func NewFinnhubOracle(cfg FinnhubConfig) *FinnhubOracle {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultFinnhubURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)

	return &FinnhubOracle{
		client:  client,
		apiKey:  cfg.APIKey,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 2),
	}
}

// Price implements Oracle.
func (o *FinnhubOracle) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if o.apiKey == "" {
		return decimal.Zero, fmt.Errorf("finnhub: api key not configured")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("finnhub: rate limit: %w", err)
	}

	var q finnhubQuote
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": ticker,
			"token":  o.apiKey,
		}).
		SetResult(&q).
		Get("/quote")
	if err != nil {
		return decimal.Zero, fmt.Errorf("finnhub: quote %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("finnhub: quote %s: status %d", ticker, resp.StatusCode())
	}

	// Finnhub answers unknown symbols with an all-zero quote.
	price := q.Current
	if price <= 0 {
		price = q.PreviousClose
	}
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("finnhub: %s: %w", ticker, ErrUnavailable)
	}
	return decimal.NewFromFloat(price), nil
}
