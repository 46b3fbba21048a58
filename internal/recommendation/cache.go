// Package recommendation caches analysis results per agent so that repeated
// analysis requests inside the TTL are served without a decision source call.
package recommendation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// DefaultTTL is how long a recommendation stays servable.
const DefaultTTL = time.Hour

// Cache reads and writes recommendations through a RecommendationStore.
type Cache struct {
	store storage.RecommendationStore
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a cache over store. A non-positive ttl uses DefaultTTL.
func NewCache(store storage.RecommendationStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the cache that reads time from now.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	cp := *c
	cp.now = now
	return &cp
}

// Bind returns a copy of the cache that uses store, typically the
// transaction-bound store of a ledger operation.
func (c *Cache) Bind(store storage.RecommendationStore) *Cache {
	cp := *c
	cp.store = store
	return &cp
}

// TTL returns the configured lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetActive returns the newest unexecuted, unexpired recommendation for the
// agent, or nil if there is none.
func (c *Cache) GetActive(ctx context.Context, agentID string) (*domain.Recommendation, error) {
	rec, err := c.store.GetActive(ctx, agentID, c.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active recommendation: %w", err)
	}
	return rec, nil
}

// Store persists rec for the agent with created_at = now and
// expires_at = now + ttl. A non-positive ttl uses the cache default.
// ID, AgentID and the timestamps of rec are overwritten.
func (c *Cache) Store(ctx context.Context, agentID string, rec *domain.Recommendation, ttl time.Duration) (*domain.Recommendation, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now().UTC()

	out := rec.Clone()
	out.ID = uuid.NewString()
	out.AgentID = agentID
	out.CreatedAt = now
	out.ExpiresAt = now.Add(ttl)
	out.IsExecuted = false
	out.ExecutedAt = nil
	if out.TotalValue.IsZero() {
		out.TotalValue = out.Price.Mul(decimal.NewFromInt(out.Quantity))
	}

	if err := c.store.Insert(ctx, out); err != nil {
		return nil, fmt.Errorf("store recommendation: %w", err)
	}
	return out, nil
}

// InvalidateOnTrade marks every unexecuted recommendation of the agent as
// executed so the next analysis reflects the new portfolio.
func (c *Cache) InvalidateOnTrade(ctx context.Context, agentID string) (int, error) {
	n, err := c.store.MarkExecuted(ctx, agentID, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("invalidate recommendations: %w", err)
	}
	return n, nil
}

// Supersede marks the agent's outstanding recommendations executed and
// stores rec as the only active one. Run it inside the agent transaction
// so no reader sees both.
func (c *Cache) Supersede(ctx context.Context, agentID string, rec *domain.Recommendation, ttl time.Duration) (*domain.Recommendation, error) {
	if _, err := c.store.MarkExecuted(ctx, agentID, c.now().UTC()); err != nil {
		return nil, fmt.Errorf("supersede recommendations: %w", err)
	}
	return c.Store(ctx, agentID, rec, ttl)
}
