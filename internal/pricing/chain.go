package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trading-arena/internal/observability"
)

// Chain tries each oracle in order and returns the first positive price.
type Chain []Oracle

// Price implements Oracle.
func (c Chain) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	var errs []error
	for _, o := range c {
		p, err := o.Price(ctx, ticker)
		if err == nil && p.IsPositive() {
			return p, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return decimal.Zero, ErrUnavailable
	}
	return decimal.Zero, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

// Named records latency and errors of an oracle under a source label.
func Named(source string, o Oracle) Oracle {
	return OracleFunc(func(ctx context.Context, ticker string) (decimal.Decimal, error) {
		start := time.Now()
		p, err := o.Price(ctx, ticker)
		observability.RecordOracleCall(source, time.Since(start).Seconds(), err)
		return p, err
	})
}

// WithTimeout bounds every lookup of o by d.
func WithTimeout(o Oracle, d time.Duration) Oracle {
	if d <= 0 {
		return o
	}
	return OracleFunc(func(ctx context.Context, ticker string) (decimal.Decimal, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return o.Price(ctx, ticker)
	})
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// CachedOracle memoizes successful lookups for a fixed TTL.
type CachedOracle struct {
	next Oracle
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedPrice
}

// Cached wraps o with a TTL cache.
func Cached(o Oracle, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		next:  o,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedPrice),
	}
}

// Price implements Oracle.
func (c *CachedOracle) Price(ctx context.Context, ticker string) (decimal.Decimal, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.cache[ticker]
	c.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		observability.RecordOracleCacheHit()
		return entry.price, nil
	}

	p, err := c.next.Price(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.cache[ticker] = cachedPrice{price: p, fetchedAt: now}
	c.mu.Unlock()
	return p, nil
}
