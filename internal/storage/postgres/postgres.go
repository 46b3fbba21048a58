package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trading-arena/internal/observability"
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool. A maxConns of zero keeps
// the driver default.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// querier is the subset of pgx shared by the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// observed records query latency and failures per statement verb.
type observed struct {
	q querier
}

func (o observed) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := o.q.Exec(ctx, sql, args...)
	observability.RecordDBQuery("postgres", verb(sql), time.Since(start).Seconds(), err)
	return tag, err
}

func (o observed) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := o.q.Query(ctx, sql, args...)
	observability.RecordDBQuery("postgres", verb(sql), time.Since(start).Seconds(), err)
	return rows, err
}

func (o observed) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &observedRow{row: o.q.QueryRow(ctx, sql, args...), op: verb(sql), start: time.Now()}
}

// observedRow defers the measurement to Scan, where QueryRow errors surface.
type observedRow struct {
	row   pgx.Row
	op    string
	start time.Time
}

func (r *observedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	var recorded error
	if err != nil && !isNotFoundError(err) {
		recorded = err
	}
	observability.RecordDBQuery("postgres", r.op, time.Since(r.start).Seconds(), recorded)
	return err
}

// verb returns the lower-cased leading keyword of a statement.
func verb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
