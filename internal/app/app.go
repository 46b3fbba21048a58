// Package app assembles the arena from configuration: storage, pricing,
// decision source, ledger, analyzer, websocket hub and auto-trade runner.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-arena/internal/analysis"
	"trading-arena/internal/api"
	"trading-arena/internal/autotrade"
	"trading-arena/internal/config"
	"trading-arena/internal/decision"
	"trading-arena/internal/domain"
	"trading-arena/internal/idhash"
	"trading-arena/internal/ledger"
	"trading-arena/internal/notify"
	"trading-arena/internal/pricing"
	"trading-arena/internal/recommendation"
	"trading-arena/internal/storage"
	chstore "trading-arena/internal/storage/clickhouse"
	"trading-arena/internal/storage/memory"
	"trading-arena/internal/storage/migrations"
	pgstore "trading-arena/internal/storage/postgres"
)

// App holds the wired components. Close releases the connections.
type App struct {
	Config      *config.Config
	Repository  storage.Repository
	Performance storage.PerformanceStore // nil without ClickHouse
	Oracle      pricing.Oracle
	Ledger      *ledger.Ledger
	Analyzer    *analysis.Analyzer
	Hub         *notify.Hub
	Runner      *autotrade.Runner

	logger  *log.Logger
	closers []func()
}

// Stores opens the configured repositories without building the rest of
// the application. Callers must Close the returned App.
func Stores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	a := &App{Config: cfg, logger: logger}

	if cfg.Storage.UseMemory {
		a.Repository = memory.NewRepository()
		logger.Println("using in-memory storage")
		return a, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	if cfg.Storage.AutoMigrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Printf("postgres migrations applied: %v", applied)
	}
	a.Repository = pgstore.NewRepository(pool)

	if cfg.Storage.ClickHouseDSN != "" {
		var conn *chstore.Conn
		if cfg.Storage.AutoMigrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		}
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.Performance = chstore.NewPerformanceStore(conn)
	}
	return a, nil
}

// New opens storage and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	a, err := Stores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Oracle, err = pricing.New(cfg.PricingSettings())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("pricing: %w", err)
	}

	source, err := newSource(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	var news decision.NewsProvider
	if cfg.Decision.News && cfg.Pricing.FinnhubAPIKey != "" {
		news = decision.NewFinnhubNews(cfg.Pricing.FinnhubAPIKey, cfg.Pricing.FinnhubBaseURL, cfg.Pricing.RatePerMinute)
	}

	a.Hub = notify.NewHub(&notify.HubConfig{
		PingInterval: cfg.Notify.PingInterval,
		ReadTimeout:  2 * cfg.Notify.PingInterval,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   cfg.Notify.SendBuffer,
	}, componentLogger(a.logger, "notify"))

	cache := recommendation.NewCache(a.Repository.Recommendations(), cfg.Ledger.RecommendationTTL)
	a.Ledger = ledger.New(ledger.Options{
		Repository:  a.Repository,
		Oracle:      a.Oracle,
		Cache:       cache,
		Performance: a.Performance,
		Notifier:    api.PortfolioNotifier{Hub: a.Hub},
		TxTimeout:   cfg.Ledger.TxTimeout,
		Logger:      componentLogger(a.logger, "ledger"),
	})
	a.Analyzer = analysis.New(analysis.Options{
		Repository:      a.Repository,
		Ledger:          a.Ledger,
		Oracle:          a.Oracle,
		Source:          source,
		News:            news,
		Cache:           cache,
		Credits:         cfg.CreditPolicy(),
		DecisionTimeout: cfg.Decision.Timeout,
		PriceTimeout:    cfg.Pricing.Timeout,
		Logger:          componentLogger(a.logger, "analysis"),
	})
	a.Runner = autotrade.NewRunner(autotrade.RunnerOptions{
		Repository:    a.Repository,
		Analyzer:      a.Analyzer,
		Executor:      a.Ledger,
		PollInterval:  cfg.AutoTrade.PollInterval,
		MinConfidence: cfg.AutoTrade.MinConfidence,
		Logger:        componentLogger(a.logger, "autotrade"),
	})
	a.closers = append(a.closers, a.Hub.Close)
	return a, nil
}

// componentLogger returns a logger that writes where base does, with the
// component's own prefix in place of base's.
func componentLogger(base *log.Logger, component string) *log.Logger {
	return log.New(base.Writer(), "["+component+"] ", base.Flags())
}

func newSource(ctx context.Context, cfg *config.Config) (decision.Source, error) {
	if cfg.Decision.Provider == "llm" {
		src, err := decision.NewOpenAISource(ctx, cfg.LLMConfig())
		if err != nil {
			return nil, fmt.Errorf("decision source: %w", err)
		}
		return src, nil
	}
	return decision.NewRulesSource(), nil
}

// Server builds the HTTP API over the app.
func (a *App) Server() *api.Server {
	cfg := a.Config
	return api.New(api.Options{
		Repository: a.Repository,
		Ledger:     a.Ledger,
		Analyzer:   a.Analyzer,
		Hub:        a.Hub,
		Policy: api.AgentPolicy{
			AllowedModels:   cfg.Decision.AllowedModels,
			DefaultModel:    cfg.Decision.DefaultLLMModel,
			DefaultRisk:     cfg.Ledger.DefaultRisk,
			StartingCapital: decimal.NewFromFloat(cfg.Ledger.StartingCapital),
		},
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       componentLogger(a.logger, "api"),
	})
}

// CreateUser registers a user and returns it with its bearer token. The
// token is shown once; only its hash is stored.
func (a *App) CreateUser(ctx context.Context, displayName string, tier domain.Tier) (*domain.User, string, error) {
	if !tier.Valid() {
		return nil, "", fmt.Errorf("unknown tier %q", tier)
	}
	token, hash, err := idhash.NewAPIToken()
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:               uuid.NewString(),
		DisplayName:      displayName,
		Tier:             tier,
		CreditsRemaining: a.Config.CreditPolicy().Allowance(tier),
		CreditsResetAt:   analysis.NextReset(now),
		APITokenHash:     hash,
		CreatedAt:        now,
	}
	if err := a.Repository.Users().Insert(ctx, u); err != nil {
		return nil, "", fmt.Errorf("insert user: %w", err)
	}
	return u, token, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
