package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

func seedAgent(t *testing.T, r *Repository, id string) *domain.Agent {
	t.Helper()
	a := &domain.Agent{
		ID:              id,
		UserID:          "user1",
		Name:            "agent " + id,
		Risk:            domain.DefaultRiskParams(),
		Status:          domain.AgentStatusActive,
		StartingCapital: domain.DefaultStartingCapital,
		CashBalance:     domain.DefaultStartingCapital,
		CurrentValue:    domain.DefaultStartingCapital,
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := r.Agents().Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert agent failed: %v", err)
	}
	return a
}

func TestRepository_InAgentTx_CommitsOnSuccess(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")

	err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
		a, err := tx.Agents().GetByID(ctx, "a1")
		if err != nil {
			return err
		}
		a.CashBalance = decimal.NewFromInt(500)
		if err := tx.Agents().Update(ctx, a); err != nil {
			return err
		}
		return tx.Positions().Insert(ctx, &domain.Position{
			ID: "p1", AgentID: "a1", Ticker: "AAPL", Quantity: 1, Status: domain.PositionStatusOpen,
		})
	})
	if err != nil {
		t.Fatalf("InAgentTx failed: %v", err)
	}

	a, _ := r.Agents().GetByID(ctx, "a1")
	if !a.CashBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("cash not committed: %s", a.CashBalance)
	}
	if _, err := r.Positions().GetOpen(ctx, "a1", "AAPL"); err != nil {
		t.Errorf("position not committed: %v", err)
	}
}

func TestRepository_InAgentTx_RollsBackOnError(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")
	boom := errors.New("boom")

	err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
		a, _ := tx.Agents().GetByID(ctx, "a1")
		a.CashBalance = decimal.Zero
		if err := tx.Agents().Update(ctx, a); err != nil {
			return err
		}
		if err := tx.Trades().Insert(ctx, &domain.Trade{ID: "t1", AgentID: "a1", Action: domain.ActionBuy}); err != nil {
			return err
		}
		if err := tx.Positions().Insert(ctx, &domain.Position{
			ID: "p1", AgentID: "a1", Ticker: "AAPL", Quantity: 1, Status: domain.PositionStatusOpen,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	a, _ := r.Agents().GetByID(ctx, "a1")
	if !a.CashBalance.Equal(domain.DefaultStartingCapital) {
		t.Errorf("cash should be restored, got %s", a.CashBalance)
	}
	trades, _ := r.Trades().ListByAgent(ctx, "a1", 0)
	if len(trades) != 0 {
		t.Errorf("expected no trades after rollback, got %d", len(trades))
	}
	if _, err := r.Positions().GetOpen(ctx, "a1", "AAPL"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected position rollback, got %v", err)
	}
}

func TestRepository_InAgentTx_RollbackKeepsOtherWrites(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
		a, _ := tx.Agents().GetByID(ctx, "a1")
		a.CashBalance = decimal.Zero
		if err := tx.Agents().Update(ctx, a); err != nil {
			return err
		}
		if err := tx.Trades().Insert(ctx, &domain.Trade{ID: "t1", AgentID: "a1", Action: domain.ActionBuy, CreatedAt: now}); err != nil {
			return err
		}
		// Writes from callers outside the transaction land while it is open.
		if err := r.Recommendations().Insert(ctx, &domain.Recommendation{
			ID: "rec-1", AgentID: "a1", Action: domain.ActionHold, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}); err != nil {
			return err
		}
		if err := r.Trades().Insert(ctx, &domain.Trade{ID: "t-outside", AgentID: "a1", Action: domain.ActionSell, CreatedAt: now}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rec, err := r.Recommendations().GetActive(ctx, "a1", now)
	if err != nil {
		t.Fatalf("recommendation written outside the tx was lost: %v", err)
	}
	if rec.ID != "rec-1" {
		t.Errorf("expected rec-1, got %s", rec.ID)
	}
	trades, _ := r.Trades().ListByAgent(ctx, "a1", 0)
	if len(trades) != 1 || trades[0].ID != "t-outside" {
		t.Errorf("expected only t-outside to survive, got %v", trades)
	}
	a, _ := r.Agents().GetByID(ctx, "a1")
	if !a.CashBalance.Equal(domain.DefaultStartingCapital) {
		t.Errorf("cash should be restored, got %s", a.CashBalance)
	}
}

func TestRepository_InAgentTx_RollbackRevertsMarkExecuted(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")
	now := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	if err := r.Recommendations().Insert(ctx, &domain.Recommendation{
		ID: "rec-1", AgentID: "a1", Action: domain.ActionHold, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	boom := errors.New("boom")

	err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
		if _, err := tx.Recommendations().MarkExecuted(ctx, "a1", now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := r.Recommendations().GetActive(ctx, "a1", now); err != nil {
		t.Errorf("recommendation should be active again: %v", err)
	}
}

func TestRepository_InAgentTx_OuterFailureUndoesInnerCommit(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")
	seedAgent(t, r, "a2")
	boom := errors.New("boom")

	err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
		err := tx.InAgentTx(ctx, "a2", func(ctx context.Context, tx storage.Repository) error {
			return tx.Trades().Insert(ctx, &domain.Trade{ID: "t2", AgentID: "a2", Action: domain.ActionBuy})
		})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if trades, _ := r.Trades().ListByAgent(ctx, "a2", 0); len(trades) != 0 {
		t.Errorf("inner write should be undone with the outer tx, got %d trades", len(trades))
	}
}

func TestRepository_InAgentTx_UnknownAgent(t *testing.T) {
	r := NewRepository()
	err := r.InAgentTx(context.Background(), "missing", func(context.Context, storage.Repository) error {
		t.Fatal("callback must not run")
		return nil
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_InAgentTx_NestedJoins(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")

	done := make(chan error, 1)
	go func() {
		done <- r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
			return tx.InAgentTx(ctx, "a1", func(context.Context, storage.Repository) error {
				return nil
			})
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("nested InAgentTx failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nested InAgentTx deadlocked")
	}
}

func TestRepository_InAgentTx_Serializes(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.InAgentTx(ctx, "a1", func(ctx context.Context, tx storage.Repository) error {
				a, err := tx.Agents().GetByID(ctx, "a1")
				if err != nil {
					return err
				}
				a.TotalTrades++
				return tx.Agents().Update(ctx, a)
			})
			if err != nil {
				t.Errorf("InAgentTx failed: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := r.Agents().GetByID(ctx, "a1")
	if a.TotalTrades != workers {
		t.Errorf("lost updates: got %d, want %d", a.TotalTrades, workers)
	}
}

func TestRepository_DeleteCascades(t *testing.T) {
	r := NewRepository()
	ctx := context.Background()
	seedAgent(t, r, "a1")

	_ = r.Positions().Insert(ctx, &domain.Position{ID: "p1", AgentID: "a1", Ticker: "MSFT", Quantity: 2, Status: domain.PositionStatusOpen})
	_ = r.Trades().Insert(ctx, &domain.Trade{ID: "t1", AgentID: "a1", Action: domain.ActionBuy})

	if err := r.Agents().Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if positions, _ := r.Positions().ListByAgent(ctx, "a1"); len(positions) != 0 {
		t.Errorf("positions not cascaded: %d", len(positions))
	}
	if trades, _ := r.Trades().ListByAgent(ctx, "a1", 0); len(trades) != 0 {
		t.Errorf("trades not cascaded: %d", len(trades))
	}
	if err := r.Agents().Delete(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
