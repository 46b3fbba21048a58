package postgres

import (
	"context"
	"fmt"
	"time"

	"trading-arena/internal/domain"
	"trading-arena/internal/storage"
)

// RecommendationStore implements storage.RecommendationStore using PostgreSQL.
type RecommendationStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.RecommendationStore = (*RecommendationStore)(nil)

const recommendationColumns = `
	id, agent_id, action, ticker, quantity, price, total_value,
	confidence, reasoning, news_summary, risk_assessment, api_cost, forced,
	created_at, expires_at, is_executed, executed_at`

// Insert adds a new recommendation. Returns ErrDuplicateKey if id exists.
func (s *RecommendationStore) Insert(ctx context.Context, r *domain.Recommendation) error {
	query := `
		INSERT INTO agent_recommendations (` + recommendationColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)
	`

	_, err := s.q.Exec(ctx, query,
		r.ID, r.AgentID, string(r.Action), r.Ticker, r.Quantity, r.Price, r.TotalValue,
		r.Confidence, r.Reasoning, r.NewsSummary, r.RiskAssessment, r.APICost, r.Forced,
		r.CreatedAt, r.ExpiresAt, r.IsExecuted, r.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// GetActive retrieves the newest unexecuted recommendation whose
// expires_at is after now. Returns ErrNotFound if none.
func (s *RecommendationStore) GetActive(ctx context.Context, agentID string, now time.Time) (*domain.Recommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM agent_recommendations
		WHERE agent_id = $1 AND NOT is_executed AND expires_at > $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	r, err := scanRecommendation(s.q.QueryRow(ctx, query, agentID, now))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active recommendation: %w", err)
	}
	return r, nil
}

// MarkExecuted flags every unexecuted recommendation of the agent as executed.
func (s *RecommendationStore) MarkExecuted(ctx context.Context, agentID string, at time.Time) (int, error) {
	query := `
		UPDATE agent_recommendations
		SET is_executed = TRUE, executed_at = $2
		WHERE agent_id = $1 AND NOT is_executed
	`

	tag, err := s.q.Exec(ctx, query, agentID, at)
	if err != nil {
		return 0, fmt.Errorf("mark recommendations executed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecommendation(row rowScanner) (*domain.Recommendation, error) {
	var (
		r      domain.Recommendation
		action string
	)
	err := row.Scan(
		&r.ID, &r.AgentID, &action, &r.Ticker, &r.Quantity, &r.Price, &r.TotalValue,
		&r.Confidence, &r.Reasoning, &r.NewsSummary, &r.RiskAssessment, &r.APICost, &r.Forced,
		&r.CreatedAt, &r.ExpiresAt, &r.IsExecuted, &r.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Action = domain.Action(action)
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	r.ExecutedAt = utcPtr(r.ExecutedAt)
	return &r, nil
}
