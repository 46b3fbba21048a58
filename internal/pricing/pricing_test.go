package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piquette/finance-go"
	"github.com/shopspring/decimal"
)

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(map[string]float64{"AAPL": 150})
	ctx := context.Background()

	p, err := o.Price(ctx, "AAPL")
	if err != nil || !p.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("Price(AAPL) = %s, %v", p, err)
	}

	a, _ := o.Price(ctx, "ZZZZ")
	b, _ := o.Price(ctx, "ZZZZ")
	if !a.Equal(b) || !a.IsPositive() {
		t.Errorf("unknown ticker price must be stable and positive: %s vs %s", a, b)
	}

	if _, err := o.Strict().Price(ctx, "ZZZZ"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("strict oracle should return ErrUnavailable, got %v", err)
	}
}

func TestChain_FallsThrough(t *testing.T) {
	failing := OracleFunc(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("down")
	})
	zero := OracleFunc(func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, nil
	})
	good := NewStaticOracle(map[string]float64{"MSFT": 410})

	p, err := Chain{failing, zero, good}.Price(context.Background(), "MSFT")
	if err != nil || !p.Equal(decimal.NewFromInt(410)) {
		t.Fatalf("Chain price = %s, %v", p, err)
	}

	_, err = Chain{failing}.Price(context.Background(), "MSFT")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCachedOracle_TTL(t *testing.T) {
	var calls atomic.Int32
	src := OracleFunc(func(context.Context, string) (decimal.Decimal, error) {
		calls.Add(1)
		return decimal.NewFromInt(10), nil
	})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Cached(src, time.Minute)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, _ = c.Price(ctx, "AAPL")
	_, _ = c.Price(ctx, "AAPL")
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls.Load())
	}

	now = now.Add(2 * time.Minute)
	_, _ = c.Price(ctx, "AAPL")
	if calls.Load() != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", calls.Load())
	}
}

func TestWithTimeout(t *testing.T) {
	slow := OracleFunc(func(ctx context.Context, _ string) (decimal.Decimal, error) {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})
	_, err := WithTimeout(slow, 10*time.Millisecond).Price(context.Background(), "AAPL")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPrices_SkipsFailures(t *testing.T) {
	o := NewStaticOracle(map[string]float64{"AAPL": 1, "MSFT": 2}).Strict()
	got := Prices(context.Background(), o, []string{"AAPL", "MSFT", "NOPE", "AAPL"})
	if len(got) != 2 {
		t.Fatalf("expected 2 prices, got %v", got)
	}
	if _, ok := got["NOPE"]; ok {
		t.Error("failed ticker must be absent")
	}
}

func TestFinnhubOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("token") != "key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			_, _ = w.Write([]byte(`{"c":189.5,"pc":187.0,"t":1717000000}`))
		default:
			_, _ = w.Write([]byte(`{"c":0,"pc":0,"t":0}`))
		}
	}))
	defer srv.Close()

	o := NewFinnhubOracle(FinnhubConfig{APIKey: "key", BaseURL: srv.URL, RateLimitPerMinute: 6000})
	ctx := context.Background()

	p, err := o.Price(ctx, "AAPL")
	if err != nil || !p.Equal(decimal.NewFromFloat(189.5)) {
		t.Fatalf("Price(AAPL) = %s, %v", p, err)
	}
	if _, err := o.Price(ctx, "NOPE"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for zero quote, got %v", err)
	}

	noKey := NewFinnhubOracle(FinnhubConfig{BaseURL: srv.URL})
	if _, err := noKey.Price(ctx, "AAPL"); err == nil {
		t.Error("expected error without api key")
	}
}

func TestYahooOracle(t *testing.T) {
	o := &YahooOracle{get: func(symbol string) (*finance.Quote, error) {
		if symbol == "AAPL" {
			return &finance.Quote{RegularMarketPrice: 190.25}, nil
		}
		return nil, nil
	}}
	ctx := context.Background()

	p, err := o.Price(ctx, "AAPL")
	if err != nil || !p.Equal(decimal.NewFromFloat(190.25)) {
		t.Fatalf("Price(AAPL) = %s, %v", p, err)
	}
	if _, err := o.Price(ctx, "NOPE"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNew(t *testing.T) {
	o, err := New(Settings{Sources: []string{"static"}, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := o.Price(context.Background(), "AAPL"); err != nil {
		t.Errorf("static price lookup failed: %v", err)
	}

	if _, err := New(Settings{Sources: []string{"finnhub"}}); err == nil {
		t.Error("finnhub without key should fail")
	}
	if _, err := New(Settings{Sources: []string{"bloomberg"}}); err == nil {
		t.Error("unknown source should fail")
	}
}
