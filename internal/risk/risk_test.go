package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func valuation(ticker string, pct float64) domain.PositionValuation {
	return domain.PositionValuation{
		Position:         domain.Position{Ticker: ticker},
		UnrealizedPnLPct: pct,
	}
}

func TestCheckStopLoss(t *testing.T) {
	tests := []struct {
		name      string
		positions []domain.PositionValuation
		threshold float64
		want      string
	}{
		{"no positions", nil, 10, ""},
		{"none breached", []domain.PositionValuation{valuation("AAPL", -5), valuation("MSFT", 3)}, 10, ""},
		{"exact threshold triggers", []domain.PositionValuation{valuation("AAPL", -10)}, 10, "AAPL"},
		{"worst breach wins", []domain.PositionValuation{valuation("AAPL", -1), valuation("TSLA", -12), valuation("NVDA", -30)}, 10, "NVDA"},
		{"tie goes to first ticker", []domain.PositionValuation{valuation("TSLA", -12), valuation("NVDA", -12)}, 10, "NVDA"},
		{"tie ignores input order", []domain.PositionValuation{valuation("NVDA", -12), valuation("TSLA", -12)}, 10, "NVDA"},
		{"disabled threshold", []domain.PositionValuation{valuation("AAPL", -90)}, 0, ""},
		{"stale price ignored", []domain.PositionValuation{{Position: domain.Position{Ticker: "AAPL"}, UnrealizedPnLPct: -50, PriceStale: true}}, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckStopLoss(tt.positions, tt.threshold)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil, got %s", got.Ticker)
				}
				return
			}
			if got == nil || got.Ticker != tt.want {
				t.Errorf("expected %s, got %v", tt.want, got)
			}
		})
	}
}

func TestValidateMaxPositionSize(t *testing.T) {
	// 30000 order against 100000 total with a 25% cap.
	got := ValidateMaxPositionSize(d(100000), d(30000), decimal.Zero, 25)
	if got.Valid {
		t.Error("expected rejection")
	}
	if got.CurrentPct != 30 {
		t.Errorf("CurrentPct = %v, want 30", got.CurrentPct)
	}
	if !got.MaxAllowed.Equal(d(25000)) {
		t.Errorf("MaxAllowed = %s, want 25000", got.MaxAllowed)
	}

	got = ValidateMaxPositionSize(d(100000), d(15000), d(10000), 25)
	if !got.Valid {
		t.Errorf("exposure exactly at the cap should pass: %+v", got)
	}

	got = ValidateMaxPositionSize(decimal.Zero, d(1), decimal.Zero, 25)
	if got.Valid {
		t.Error("zero total should reject positive exposure")
	}
}

func TestCheckDailyTradeLimit(t *testing.T) {
	if !CheckDailyTradeLimit(4, 5) {
		t.Error("4 of 5 should allow another")
	}
	if CheckDailyTradeLimit(5, 5) {
		t.Error("5 of 5 should block")
	}
}

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	in := time.Date(2025, 6, 1, 21, 30, 0, 0, loc) // 02:30 UTC on June 2
	want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if got := DayStart(in); !got.Equal(want) {
		t.Errorf("DayStart = %v, want %v", got, want)
	}
}

func TestSuggestQuantity(t *testing.T) {
	tests := []struct {
		name      string
		action    domain.Action
		requested int64
		held      int64
		cash      int64
		total     int64
		price     int64
		want      int64
	}{
		{"buy capped by position limit", domain.ActionBuy, 0, 0, 100000, 100000, 150, 166},
		{"buy capped by cash", domain.ActionBuy, 0, 0, 3000, 100000, 150, 20},
		{"buy honours smaller request", domain.ActionBuy, 10, 0, 100000, 100000, 150, 10},
		{"buy floor of one", domain.ActionBuy, 0, 0, 50, 100000, 150, 1},
		{"sell clamped to held", domain.ActionSell, 500, 40, 0, 0, 150, 40},
		{"sell partial", domain.ActionSell, 10, 40, 0, 0, 150, 10},
		{"sell default is everything", domain.ActionSell, 0, 40, 0, 0, 150, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestQuantity(tt.action, tt.requested, tt.held, d(tt.cash), d(tt.total), d(tt.price), 25)
			if got != tt.want {
				t.Errorf("SuggestQuantity = %d, want %d", got, tt.want)
			}
		})
	}
}
