// Package config loads server settings from defaults, an optional YAML
// file, a .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trading-arena/internal/analysis"
	"trading-arena/internal/decision"
	"trading-arena/internal/domain"
	"trading-arena/internal/pricing"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	UseMemory     bool   `yaml:"use_memory"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"` // empty disables the performance mirror
	MaxConns      int32  `yaml:"max_conns"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
}

type Pricing struct {
	Sources        []string           `yaml:"sources"` // tried in order
	Timeout        time.Duration      `yaml:"timeout"`
	CacheTTL       time.Duration      `yaml:"cache_ttl"`
	RatePerMinute  int                `yaml:"rate_per_minute"`
	FinnhubAPIKey  string             `yaml:"finnhub_api_key"`
	FinnhubBaseURL string             `yaml:"finnhub_base_url"`
	AlpacaAPIKey   string             `yaml:"alpaca_api_key"`
	AlpacaSecret   string             `yaml:"alpaca_secret_key"`
	StaticPrices   map[string]float64 `yaml:"static_prices"`
}

type Decision struct {
	Provider        string        `yaml:"provider"` // llm | rules
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxTokens       int           `yaml:"max_tokens"`
	InputPer1K      float64       `yaml:"input_price_per_1k"`
	OutputPer1K     float64       `yaml:"output_price_per_1k"`
	News            bool          `yaml:"news"`
	AllowedModels   []string      `yaml:"allowed_models"`
	DefaultLLMModel string        `yaml:"default_llm_model"`
}

type Ledger struct {
	TxTimeout         time.Duration     `yaml:"tx_timeout"`
	RecommendationTTL time.Duration     `yaml:"recommendation_ttl"`
	StartingCapital   float64           `yaml:"starting_capital"`
	DefaultRisk       domain.RiskParams `yaml:"default_risk"`
}

type AutoTrade struct {
	Enabled       bool          `yaml:"enabled"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MinConfidence float64       `yaml:"min_confidence"`
}

type Notify struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	SendBuffer   int           `yaml:"send_buffer"`
}

// Config is the full server configuration.
type Config struct {
	Server    Server              `yaml:"server"`
	Storage   Storage             `yaml:"storage"`
	Pricing   Pricing             `yaml:"pricing"`
	Decision  Decision            `yaml:"decision"`
	Ledger    Ledger              `yaml:"ledger"`
	Credits   map[domain.Tier]int `yaml:"credits"`
	AutoTrade AutoTrade           `yaml:"autotrade"`
	Notify    Notify              `yaml:"notify"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			MaxConns:    10,
			AutoMigrate: true,
		},
		Pricing: Pricing{
			Sources:       []string{pricing.SourceStatic},
			Timeout:       5 * time.Second,
			CacheTTL:      30 * time.Second,
			RatePerMinute: 60,
		},
		Decision: Decision{
			Provider:        "rules",
			Model:           "gpt-4o-mini",
			Timeout:         60 * time.Second,
			MaxTokens:       1500,
			AllowedModels:   []string{"claude-sonnet", "claude-opus", "gpt-4", "gpt-4-turbo"},
			DefaultLLMModel: "claude-sonnet",
		},
		Ledger: Ledger{
			TxTimeout:         10 * time.Second,
			RecommendationTTL: time.Hour,
			StartingCapital:   domain.DefaultStartingCapital.InexactFloat64(),
			DefaultRisk:       domain.DefaultRiskParams(),
		},
		Credits: analysis.DefaultCredits(),
		AutoTrade: AutoTrade{
			PollInterval: time.Minute,
		},
		Notify: Notify{
			PingInterval: 30 * time.Second,
			SendBuffer:   16,
		},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// A .env file in the working directory is loaded if present; variables
// already set in the environment win over it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("HTTP_ADDR", &c.Server.Addr)
	boolean("USE_MEMORY", &c.Storage.UseMemory)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("CLICKHOUSE_DSN", &c.Storage.ClickHouseDSN)
	str("FINNHUB_API_KEY", &c.Pricing.FinnhubAPIKey)
	str("ALPACA_API_KEY", &c.Pricing.AlpacaAPIKey)
	str("ALPACA_SECRET_KEY", &c.Pricing.AlpacaSecret)
	str("LLM_API_KEY", &c.Decision.APIKey)
	str("LLM_BASE_URL", &c.Decision.BaseURL)
	str("LLM_MODEL", &c.Decision.Model)
	str("DECISION_SOURCE", &c.Decision.Provider)
	boolean("AUTOTRADE_ENABLED", &c.AutoTrade.Enabled)

	if v, ok := lookup("PRICE_SOURCE"); ok && v != "" {
		var sources []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		c.Pricing.Sources = sources
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required unless storage.use_memory is set"))
	}
	if len(c.Pricing.Sources) == 0 {
		errs = append(errs, errors.New("pricing.sources must not be empty"))
	}
	for _, s := range c.Pricing.Sources {
		switch strings.ToLower(s) {
		case pricing.SourceStatic, pricing.SourceYahoo:
		case pricing.SourceFinnhub:
			if c.Pricing.FinnhubAPIKey == "" {
				errs = append(errs, errors.New("pricing source finnhub needs FINNHUB_API_KEY"))
			}
		case pricing.SourceAlpaca:
			if c.Pricing.AlpacaAPIKey == "" || c.Pricing.AlpacaSecret == "" {
				errs = append(errs, errors.New("pricing source alpaca needs ALPACA_API_KEY and ALPACA_SECRET_KEY"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown pricing source %q", s))
		}
	}

	switch c.Decision.Provider {
	case "rules":
	case "llm":
		if c.Decision.APIKey == "" {
			errs = append(errs, errors.New("decision provider llm needs LLM_API_KEY"))
		}
		if c.Decision.Model == "" {
			errs = append(errs, errors.New("decision.model is required for provider llm"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown decision provider %q", c.Decision.Provider))
	}
	if !c.AllowsModel(c.Decision.DefaultLLMModel) {
		errs = append(errs, fmt.Errorf("decision.default_llm_model %q is not in allowed_models", c.Decision.DefaultLLMModel))
	}

	if c.Ledger.StartingCapital <= 0 {
		errs = append(errs, errors.New("ledger.starting_capital must be positive"))
	}
	if err := c.Ledger.DefaultRisk.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ledger.default_risk: %w", err))
	}
	for tier, n := range c.Credits {
		if !tier.Valid() {
			errs = append(errs, fmt.Errorf("credits: unknown tier %q", tier))
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("credits.%s must not be negative", tier))
		}
	}
	if c.AutoTrade.MinConfidence < 0 || c.AutoTrade.MinConfidence > 1 {
		errs = append(errs, errors.New("autotrade.min_confidence must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// AllowsModel reports whether an agent may be configured with model.
func (c *Config) AllowsModel(model string) bool {
	for _, m := range c.Decision.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

// PricingSettings maps the pricing section onto the oracle factory.
func (c *Config) PricingSettings() pricing.Settings {
	return pricing.Settings{
		Sources:      c.Pricing.Sources,
		CacheTTL:     c.Pricing.CacheTTL,
		Timeout:      c.Pricing.Timeout,
		StaticPrices: c.Pricing.StaticPrices,
		Finnhub: pricing.FinnhubConfig{
			APIKey:             c.Pricing.FinnhubAPIKey,
			BaseURL:            c.Pricing.FinnhubBaseURL,
			Timeout:            c.Pricing.Timeout,
			RateLimitPerMinute: c.Pricing.RatePerMinute,
		},
		Alpaca: pricing.AlpacaConfig{
			APIKey:    c.Pricing.AlpacaAPIKey,
			APISecret: c.Pricing.AlpacaSecret,
		},
	}
}

// LLMConfig maps the decision section onto the LLM source.
func (c *Config) LLMConfig() decision.LLMConfig {
	return decision.LLMConfig{
		APIKey:    c.Decision.APIKey,
		BaseURL:   c.Decision.BaseURL,
		Model:     c.Decision.Model,
		MaxTokens: c.Decision.MaxTokens,
		Timeout:   c.Decision.Timeout,
		Price:     decision.TokenPrice{Input: c.Decision.InputPer1K, Output: c.Decision.OutputPer1K},
	}
}

// CreditPolicy returns the per-tier allowance, falling back to the defaults
// for tiers the file does not mention.
func (c *Config) CreditPolicy() analysis.Credits {
	out := analysis.DefaultCredits()
	for tier, n := range c.Credits {
		out[tier] = n
	}
	return out
}
