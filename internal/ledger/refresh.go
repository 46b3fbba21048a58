package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/observability"
	"trading-arena/internal/storage"
)

// RefreshResult is the outcome of revaluing an agent.
type RefreshResult struct {
	Agent     *domain.Agent
	Portfolio *domain.PortfolioSummary
	Snapshot  *domain.PortfolioSnapshot
}

// Refresh revalues the agent at current prices, persists the new total and
// records a snapshot.
func (l *Ledger) Refresh(ctx context.Context, agentID string) (*RefreshResult, error) {
	ctx, cancel := l.txContext(ctx)
	defer cancel()

	start := time.Now()
	var result *RefreshResult
	err := l.repo.InAgentTx(ctx, agentID, func(ctx context.Context, r storage.Repository) error {
		agent, err := l.loadAgent(ctx, r, agentID)
		if err != nil {
			return err
		}
		summary, err := l.summarize(ctx, r, agent)
		if err != nil {
			return err
		}
		snap, err := l.recordSnapshot(ctx, r, agent, summary, l.now().UTC())
		if err != nil {
			return err
		}
		result = &RefreshResult{Agent: agent, Portfolio: summary, Snapshot: snap}
		return nil
	})
	if err != nil {
		var derr *domain.Error
		if !errors.As(err, &derr) && errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NewError(domain.CodeAgentNotFound, "agent %s not found", agentID)
		}
		return nil, fmt.Errorf("refresh %s: %w", agentID, err)
	}

	observability.RecordLedgerTx("refresh", time.Since(start).Seconds())
	observability.RecordSnapshot()
	l.afterCommit(ctx, result.Snapshot, result.Portfolio)
	return result, nil
}

// History returns the agent's snapshots from the last days calendar days,
// oldest first.
func (l *Ledger) History(ctx context.Context, agentID string, days int) ([]*domain.PortfolioSnapshot, error) {
	if days <= 0 {
		days = 30
	}
	since := l.now().UTC().AddDate(0, 0, -days)
	snaps, err := l.repo.Snapshots().ListSince(ctx, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Performance returns the daily equity curve from the analytical mirror.
// It returns nil without error when no mirror is configured.
func (l *Ledger) Performance(ctx context.Context, agentID string, days int) ([]*domain.PerformancePoint, error) {
	if l.performance == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 30
	}
	since := l.now().UTC().AddDate(0, 0, -days)
	points, err := l.performance.DailyCurve(ctx, agentID, since)
	if err != nil {
		return nil, fmt.Errorf("daily curve: %w", err)
	}
	return points, nil
}
