package decision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		action  string
		wantErr bool
	}{
		{"fenced", "Here you go:\n```json\n{\"action\":\"BUY\",\"ticker\":\"aapl\",\"confidence\":0.8}\n```\nGood luck", "BUY", false},
		{"bare", `{"action":"HOLD","ticker":"","confidence":0.5}`, "HOLD", false},
		{"prose around object", `I think {"action":"SELL","ticker":"MSFT"} is right`, "SELL", false},
		{"garbage", "no json here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseResponse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProposal) {
					t.Errorf("expected ErrInvalidProposal, got %v", err)
				}
				return
			}
			if p.Action != tt.action {
				t.Errorf("action = %q, want %q", p.Action, tt.action)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	d, err := Normalize(&Proposal{Action: "buy", Ticker: " nvda ", Confidence: 1.4})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if d.Action != domain.ActionBuy || d.Ticker != "NVDA" || d.Quantity != 1 || d.Confidence != 1 {
		t.Errorf("unexpected decision %+v", d)
	}

	if _, err := Normalize(&Proposal{Action: "HOLD"}); err != nil {
		t.Errorf("HOLD without ticker should be accepted: %v", err)
	}

	bad := []*Proposal{
		nil,
		{Action: "SHORT", Ticker: "AAPL"},
		{Action: "SELL", Ticker: ""},
		{Action: "BUY", Ticker: "TOOLONGTICKER"},
	}
	for i, p := range bad {
		if _, err := Normalize(p); !errors.Is(err, ErrInvalidProposal) {
			t.Errorf("case %d: expected ErrInvalidProposal, got %v", i, err)
		}
	}
}

type fakeChatModel struct {
	content string
	err     error
	got     []*schema.Message
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = input
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.content,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 200},
		},
	}, nil
}

func testInput() *Input {
	return &Input{
		Agent: &domain.Agent{
			Name:         "Value Hunter",
			SystemPrompt: "Buy quality at a discount.",
			Risk:         domain.DefaultRiskParams(),
			Watchlist:    []string{"AAPL", "MSFT"},
		},
		Portfolio: &domain.PortfolioSummary{
			Cash:       decimal.NewFromInt(85000),
			TotalValue: decimal.NewFromInt(100000),
			Positions: []domain.PositionValuation{{
				Position:         domain.Position{Ticker: "AAPL", Quantity: 100, EntryPrice: decimal.NewFromInt(150)},
				CurrentPrice:     decimal.NewFromInt(150),
				CurrentValue:     decimal.NewFromInt(15000),
				UnrealizedPnLPct: 0,
			}},
		},
	}
}

func TestLLMSource_Propose(t *testing.T) {
	m := &fakeChatModel{content: "```json\n{\"action\":\"BUY\",\"ticker\":\"MSFT\",\"quantity\":5,\"confidence\":0.7,\"reasoning\":\"cloud growth\"}\n```"}
	src := NewLLMSource(m, "test-model", TokenPrice{Input: 0.003, Output: 0.015})

	res, err := src.Propose(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if res.Proposal.Ticker != "MSFT" || res.Proposal.Quantity != 5 {
		t.Errorf("unexpected proposal %+v", res.Proposal)
	}
	// 1000 * 0.003 / 1000 + 200 * 0.015 / 1000
	if !res.Usage.Cost.Equal(decimal.RequireFromString("0.006")) {
		t.Errorf("cost = %s, want 0.006", res.Usage.Cost)
	}
	if len(m.got) != 2 || m.got[0].Role != schema.System {
		t.Fatalf("expected system + user messages, got %d", len(m.got))
	}
	if !strings.Contains(m.got[0].Content, "Value Hunter") || !strings.Contains(m.got[0].Content, "25.0%") {
		t.Errorf("system prompt missing agent details: %s", m.got[0].Content)
	}
	if !strings.Contains(m.got[1].Content, "AAPL: 100 shares") {
		t.Errorf("user prompt missing positions: %s", m.got[1].Content)
	}
}

func TestLLMSource_Errors(t *testing.T) {
	src := NewLLMSource(&fakeChatModel{err: errors.New("503")}, "m", TokenPrice{})
	if _, err := src.Propose(context.Background(), testInput()); err == nil {
		t.Error("expected upstream error")
	}

	src = NewLLMSource(&fakeChatModel{content: "I refuse"}, "m", TokenPrice{})
	if _, err := src.Propose(context.Background(), testInput()); !errors.Is(err, ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestRulesSource(t *testing.T) {
	src := NewRulesSource()
	ctx := context.Background()

	in := testInput()
	res, err := src.Propose(ctx, in)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if res.Proposal.Action != "BUY" || res.Proposal.Ticker != "MSFT" {
		t.Errorf("expected BUY MSFT, got %+v", res.Proposal)
	}

	in.Portfolio.Positions[0].UnrealizedPnLPct = 20
	res, _ = src.Propose(ctx, in)
	if res.Proposal.Action != "SELL" || res.Proposal.Ticker != "AAPL" || res.Proposal.Quantity != 100 {
		t.Errorf("expected SELL AAPL 100, got %+v", res.Proposal)
	}

	in.Portfolio.Positions[0].UnrealizedPnLPct = 0
	in.Portfolio.Cash = decimal.NewFromInt(10000)
	res, _ = src.Propose(ctx, in)
	if res.Proposal.Action != "HOLD" {
		t.Errorf("expected HOLD, got %+v", res.Proposal)
	}
}

func TestFinnhubNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("symbol") == "FAIL" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[
			{"datetime":1717000000,"headline":"h1","source":"s","summary":"x"},
			{"datetime":1717000100,"headline":"h2","source":"s","summary":"y"},
			{"datetime":1717000200,"headline":"h3","source":"s","summary":"z"},
			{"datetime":1717000300,"headline":"h4","source":"s","summary":"w"}
		]`))
	}))
	defer srv.Close()

	n := NewFinnhubNews("key", srv.URL, 6000)
	items, err := n.News(context.Background(), []string{"AAPL", "FAIL"}, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("News failed: %v", err)
	}
	if len(items) != 3 || items[0].Ticker != "AAPL" {
		t.Errorf("expected 3 AAPL items, got %+v", items)
	}

	if _, err := n.News(context.Background(), []string{"FAIL"}, time.Now()); err == nil {
		t.Error("expected error when every lookup fails")
	}
}
