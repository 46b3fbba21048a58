package pricing

import (
	"fmt"
	"strings"
	"time"
)

// Source names accepted by New.
const (
	SourceStatic  = "static"
	SourceFinnhub = "finnhub"
	SourceYahoo   = "yahoo"
	SourceAlpaca  = "alpaca"
)

// Settings selects and configures the oracle chain.
type Settings struct {
	Sources      []string // tried in order
	CacheTTL     time.Duration
	Timeout      time.Duration
	StaticPrices map[string]float64
	Finnhub      FinnhubConfig
	Alpaca       AlpacaConfig
}

// New builds the configured oracle: Cached(Chain(WithTimeout(source)...)).
func New(s Settings) (Oracle, error) {
	if len(s.Sources) == 0 {
		s.Sources = []string{SourceStatic}
	}

	chain := make(Chain, 0, len(s.Sources))
	for _, name := range s.Sources {
		var o Oracle
		switch strings.ToLower(strings.TrimSpace(name)) {
		case SourceStatic:
			prices := s.StaticPrices
			if len(prices) == 0 {
				prices = DefaultStaticPrices
			}
			o = NewStaticOracle(prices)
		case SourceFinnhub:
			if s.Finnhub.APIKey == "" {
				return nil, fmt.Errorf("pricing: finnhub source requires an api key")
			}
			o = NewFinnhubOracle(s.Finnhub)
		case SourceYahoo:
			o = NewYahooOracle()
		case SourceAlpaca:
			if s.Alpaca.APIKey == "" || s.Alpaca.APISecret == "" {
				return nil, fmt.Errorf("pricing: alpaca source requires key and secret")
			}
			o = NewAlpacaOracle(s.Alpaca)
		default:
			return nil, fmt.Errorf("pricing: unknown source %q", name)
		}
		chain = append(chain, Named(name, WithTimeout(o, s.Timeout)))
	}

	var result Oracle = chain
	if len(chain) == 1 {
		result = chain[0]
	}
	if s.CacheTTL > 0 {
		result = Cached(result, s.CacheTTL)
	}
	return result, nil
}
