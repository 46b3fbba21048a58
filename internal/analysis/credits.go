package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/risk"
	"trading-arena/internal/storage"
)

// Credits is the daily analysis allowance per tier.
type Credits map[domain.Tier]int

// DefaultCredits returns the stock allowances.
func DefaultCredits() Credits {
	return Credits{
		domain.TierFree:       10,
		domain.TierPro:        100,
		domain.TierEnterprise: 1000,
	}
}

// Allowance returns the daily credits for tier. Unknown tiers get the free
// allowance.
func (c Credits) Allowance(tier domain.Tier) int {
	if n, ok := c[tier]; ok {
		return n
	}
	return c[domain.TierFree]
}

// NextReset returns the UTC midnight following now.
func NextReset(now time.Time) time.Time {
	return risk.DayStart(now).Add(24 * time.Hour)
}

// refreshCredits restores the tier allowance once the user's reset time
// has passed. The returned user reflects the store.
func refreshCredits(ctx context.Context, users storage.UserStore, credits Credits, u *domain.User, now time.Time) (*domain.User, error) {
	if now.Before(u.CreditsResetAt) {
		return u, nil
	}
	allowance := credits.Allowance(u.Tier)
	resetAt := NextReset(now)
	if err := users.ResetCredits(ctx, u.ID, allowance, resetAt); err != nil {
		return nil, fmt.Errorf("reset credits: %w", err)
	}
	u.CreditsRemaining = allowance
	u.CreditsResetAt = resetAt
	return u, nil
}

// consumeCredit takes one credit or fails with NO_CREDITS.
func consumeCredit(ctx context.Context, users storage.UserStore, u *domain.User) (*domain.User, error) {
	updated, err := users.ConsumeCredit(ctx, u.ID)
	if errors.Is(err, storage.ErrConflict) {
		return nil, domain.NewError(domain.CodeNoCredits, "no credits remaining, credits reset daily").
			With("credits_reset_at", u.CreditsResetAt)
	}
	if err != nil {
		return nil, fmt.Errorf("consume credit: %w", err)
	}
	return updated, nil
}

// Account returns u with its credits reset if the reset time has passed.
func (a *Analyzer) Account(ctx context.Context, u *domain.User) (*domain.User, error) {
	return refreshCredits(ctx, a.repo.Users(), a.credits, u, a.now().UTC())
}
