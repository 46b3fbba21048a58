package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn, 20)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies the SQL files under internal/storage/migrations/postgres.
func runMigrations(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	migrationsDir := filepath.Join(findProjectRoot(t), "internal", "storage", "migrations", "postgres")

	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(filepath.Join(migrationsDir, file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

var testNow = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}

// seedAgent inserts a user and an agent owned by it.
func seedAgent(t *testing.T, repo *Repository, userID, agentID, capital string) *domain.Agent {
	t.Helper()
	ctx := context.Background()

	err := repo.Users().Insert(ctx, &domain.User{
		ID:               userID,
		DisplayName:      "Tester " + userID,
		Tier:             domain.TierFree,
		CreditsRemaining: 2,
		CreditsResetAt:   testNow.Add(24 * time.Hour),
		APITokenHash:     "hash-" + userID,
		CreatedAt:        testNow,
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		require.NoError(t, err)
	}

	agent := &domain.Agent{
		ID:              agentID,
		UserID:          userID,
		Name:            "Agent " + agentID,
		LLMModel:        "claude-sonnet",
		SystemPrompt:    "buy low, sell high",
		Watchlist:       []string{"AAPL", "MSFT"},
		Risk:            domain.DefaultRiskParams(),
		Status:          domain.AgentStatusActive,
		StartingCapital: dec(capital),
		CashBalance:     dec(capital),
		CurrentValue:    dec(capital),
		TotalAPICost:    decimal.Zero,
		AutoInterval:    domain.AutoInterval24h,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, repo.Agents().Insert(ctx, agent))
	return agent
}
