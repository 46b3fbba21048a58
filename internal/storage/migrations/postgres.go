package migrations

import (
	"context"
	"fmt"

	"trading-arena/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded schema files in order and
// returns the names applied. Every file must be idempotent; the whole file
// is sent as one simple-protocol Exec.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	ms, err := load(postgresDir)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(ms))
	for _, m := range ms {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}
