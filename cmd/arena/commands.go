package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"trading-arena/internal/app"
	"trading-arena/internal/config"
	"trading-arena/internal/domain"
	"trading-arena/internal/reporting"
	"trading-arena/internal/storage/migrations"
	pgstore "trading-arena/internal/storage/postgres"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "arena",
		Short:         "Operate the AI trading arena",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("ARENA_CONFIG"), "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log component output to stderr")

	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newUserCmd(opts))
	rootCmd.AddCommand(newAutoTradeCmd(opts))
	rootCmd.AddCommand(newLeaderboardCmd(opts))
	rootCmd.AddCommand(newPortfolioCmd(opts))
	rootCmd.AddCommand(newReportCmd(opts))

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := log.New(os.Stderr, "[arena] ", log.LstdFlags)
	if !o.verbose {
		logger.SetOutput(io.Discard)
	}
	return cfg, logger, nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL and ClickHouse schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Storage.UseMemory {
				return errors.New("migrate needs storage.postgres_dsn, not in-memory storage")
			}
			ctx := cmd.Context()

			pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, 1)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return err
			}
			for _, f := range applied {
				fmt.Println(okStyle.Render("postgres  ") + f)
			}

			if cfg.Storage.ClickHouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
				if err != nil {
					return err
				}
				conn.Close()
				fmt.Println(okStyle.Render("clickhouse") + " portfolio_performance")
			}
			return nil
		},
	}
}

func newUserCmd(opts *rootOptions) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage arena users",
	}

	var (
		name string
		tier string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print its bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.Stores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			u, token, err := a.CreateUser(cmd.Context(), name, domain.Tier(tier))
			if err != nil {
				return err
			}
			fmt.Println(renderUser(u, token))
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "Display name shown on the leaderboard")
	createCmd.Flags().StringVar(&tier, "tier", string(domain.TierFree), "Subscription tier: free, pro or enterprise")

	userCmd.AddCommand(createCmd)
	return userCmd
}

func newAutoTradeCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "autotrade",
		Short: "Run auto-trade sweeps for agents that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if !once {
				err := a.Runner.Run(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			report, err := a.Runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderReport(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and print its report")
	return cmd
}

func newLeaderboardCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show public agents ranked by total return",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.Stores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			agents, err := a.Repository.Agents().ListPublic(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(agents) > limit {
				agents = agents[:limit]
			}
			fmt.Println(renderLeaderboard(agents))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of agents to show")
	return cmd
}

func newPortfolioCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio AGENT_ID",
		Short: "Value an agent's holdings at current prices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			agent, err := a.Repository.Agents().GetByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("agent %s: %w", args[0], err)
			}
			summary, err := a.Ledger.Summarize(cmd.Context(), agent)
			if err != nil {
				return err
			}
			fmt.Println(renderPortfolio(agent, summary))
			return nil
		},
	}
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		days      int
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the arena standings as Markdown and CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.Stores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := reporting.NewGenerator(a.Repository).Generate(cmd.Context(), days)
			if err != nil {
				return err
			}
			csvOut, err := reporting.RenderCSV(report)
			if err != nil {
				return fmt.Errorf("render csv: %w", err)
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			files := map[string]string{
				"ARENA_REPORT.md":  reporting.RenderMarkdown(report),
				"ARENA_AGENTS.csv": csvOut,
			}
			for _, name := range []string{"ARENA_REPORT.md", "ARENA_AGENTS.csv"} {
				path := filepath.Join(outputDir, name)
				if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Println(okStyle.Render("wrote") + " " + path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Trailing window in calendar days")
	cmd.Flags().StringVar(&outputDir, "output-dir", "reports", "Output directory for generated files")
	return cmd
}
