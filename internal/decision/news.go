package decision

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// NewsItem is one headline shown to a decision source.
type NewsItem struct {
	Ticker      string
	Headline    string
	Summary     string
	Source      string
	PublishedAt time.Time
}

// NewsProvider fetches recent headlines for tickers.
type NewsProvider interface {
	News(ctx context.Context, tickers []string, since time.Time) ([]NewsItem, error)
}

// FinnhubNews reads company news from Finnhub.
type FinnhubNews struct {
	client    *resty.Client
	apiKey    string
	limiter   *rate.Limiter
	perTicker int
}

type finnhubArticle struct {
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
}

// NewFinnhubNews creates a Finnhub news provider. baseURL may be empty.
func NewFinnhubNews(apiKey, baseURL string, rateLimitPerMinute int) *FinnhubNews {
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	if rateLimitPerMinute <= 0 {
		rateLimitPerMinute = 60
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(10 * time.Second)

	return &FinnhubNews{
		client:    client,
		apiKey:    apiKey,
		limiter:   rate.NewLimiter(rate.Limit(float64(rateLimitPerMinute)/60), 2),
		perTicker: 3,
	}
}

// News implements NewsProvider. Tickers that fail are skipped; an error is
// returned only when every lookup failed.
func (n *FinnhubNews) News(ctx context.Context, tickers []string, since time.Time) ([]NewsItem, error) {
	var (
		items   []NewsItem
		lastErr error
		failed  int
	)
	for _, ticker := range tickers {
		got, err := n.company(ctx, ticker, since)
		if err != nil {
			lastErr = err
			failed++
			continue
		}
		items = append(items, got...)
	}
	if failed > 0 && failed == len(tickers) {
		return nil, lastErr
	}
	return items, nil
}

func (n *FinnhubNews) company(ctx context.Context, ticker string, since time.Time) ([]NewsItem, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("finnhub news: rate limit: %w", err)
	}

	var articles []finnhubArticle
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": ticker,
			"from":   since.UTC().Format(time.DateOnly),
			"to":     time.Now().UTC().Format(time.DateOnly),
			"token":  n.apiKey,
		}).
		SetResult(&articles).
		Get("/company-news")
	if err != nil {
		return nil, fmt.Errorf("finnhub news %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("finnhub news %s: status %d", ticker, resp.StatusCode())
	}

	items := make([]NewsItem, 0, n.perTicker)
	for i, a := range articles {
		if i == n.perTicker {
			break
		}
		items = append(items, NewsItem{
			Ticker:      ticker,
			Headline:    a.Headline,
			Summary:     a.Summary,
			Source:      a.Source,
			PublishedAt: time.Unix(a.DateTime, 0).UTC(),
		})
	}
	return items, nil
}
