// Package main runs the arena service: the HTTP API with its websocket
// stream and, when enabled, the auto-trade loop.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/app"
	"trading-arena/internal/config"
	"trading-arena/internal/domain"
)

func main() {
	configPath := flag.String("config", os.Getenv("ARENA_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	autoTrade := flag.Bool("autotrade", false, "Run the auto-trade loop (overrides config)")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *useMemory {
		os.Setenv("USE_MEMORY", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *autoTrade {
		cfg.AutoTrade.Enabled = true
	}

	// Decimal amounts go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arena, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}
	defer arena.Close()

	if cfg.Storage.UseMemory {
		u, token, err := arena.CreateUser(ctx, "Demo", domain.TierPro)
		if err != nil {
			logger.Fatalf("Failed to create demo user: %v", err)
		}
		logger.Printf("In-memory demo user %s, bearer token %s", u.ID, token)
	}

	server := arena.Server()
	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Failed to start API server: %v", err)
	}

	done := make(chan struct{})
	if cfg.AutoTrade.Enabled {
		go func() {
			defer close(done)
			if err := arena.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Auto-trade loop stopped: %v", err)
			}
		}()
		logger.Printf("Auto-trade loop running every %s", cfg.AutoTrade.PollInterval)
	} else {
		close(done)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	cancel()

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
			logger.Println("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API server shutdown: %v", err)
	}
	<-done

	logger.Println("Shutdown complete")
}
