package postgres

import (
	"context"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.UserStore = (*UserStore)(nil)

const userColumns = `
	id, display_name, tier, credits_remaining, credits_reset_at,
	total_analyses, COALESCE(api_token_hash, ''), created_at`

// Insert adds a new user. Returns ErrDuplicateKey if id or token hash exists.
func (s *UserStore) Insert(ctx context.Context, u *domain.User) error {
	if u == nil || u.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (
			id, display_name, tier, credits_remaining, credits_reset_at,
			total_analyses, api_token_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := s.q.Exec(ctx, query,
		u.ID, u.DisplayName, string(u.Tier), u.CreditsRemaining, u.CreditsResetAt,
		u.TotalAnalyses, u.APITokenHash, u.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user. Returns ErrNotFound if not exists.
func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.get(ctx, "get user", query, id)
}

// GetByTokenHash retrieves the user owning an API token hash.
func (s *UserStore) GetByTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	if hash == "" {
		return nil, storage.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE api_token_hash = $1`
	return s.get(ctx, "get user by token", query, hash)
}

// ConsumeCredit decrements credits_remaining if it is positive. The
// balance never drops below zero under concurrent calls.
func (s *UserStore) ConsumeCredit(ctx context.Context, id string) (*domain.User, error) {
	query := `
		UPDATE users
		SET credits_remaining = credits_remaining - 1,
		    total_analyses = total_analyses + 1
		WHERE id = $1 AND credits_remaining > 0
		RETURNING ` + userColumns

	u, err := scanUser(s.q.QueryRow(ctx, query, id))
	if err == nil {
		return u, nil
	}
	if !isNotFoundError(err) {
		return nil, fmt.Errorf("consume credit: %w", err)
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, storage.ErrConflict
}

// RefundCredit reverses one ConsumeCredit.
func (s *UserStore) RefundCredit(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET credits_remaining = credits_remaining + 1,
		    total_analyses = GREATEST(total_analyses - 1, 0)
		WHERE id = $1
	`
	return s.exec(ctx, "refund credit", query, id)
}

// ResetCredits sets the allowance and the next reset time.
func (s *UserStore) ResetCredits(ctx context.Context, id string, credits int, resetAt time.Time) error {
	query := `
		UPDATE users
		SET credits_remaining = $2, credits_reset_at = $3
		WHERE id = $1
	`
	return s.exec(ctx, "reset credits", query, id, credits, resetAt)
}

func (s *UserStore) get(ctx context.Context, op, query string, arg string) (*domain.User, error) {
	u, err := scanUser(s.q.QueryRow(ctx, query, arg))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (s *UserStore) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u    domain.User
		tier string
	)
	err := row.Scan(
		&u.ID, &u.DisplayName, &tier, &u.CreditsRemaining, &u.CreditsResetAt,
		&u.TotalAnalyses, &u.APITokenHash, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Tier = domain.Tier(tier)
	u.CreditsResetAt = u.CreditsResetAt.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
