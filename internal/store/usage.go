// ABOUTME: SQL implementation for completion token usage tracking
// ABOUTME: Stores and aggregates LLM token consumption per identity

package store

import (
	"context"
	"fmt"
)

// SaveUsage stores a token usage record.
func (s *SQLStore) SaveUsage(ctx context.Context, usage *CompletionUsage) error {
	query := s.dialect.rebind(`
		INSERT INTO completion_usage (
			id, identity_id, role, prompt_tokens, completion_tokens, total_tokens, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.IdentityID,
		string(usage.Role),
		usage.PromptTokens,
		usage.CompletionTokens,
		usage.TotalTokens,
		formatTime(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"id", usage.ID,
		"identity_id", usage.IdentityID,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return nil
}

// GetUsageTotals sums every usage record of an identity.
// An identity without records yields zero totals, not an error.
func (s *SQLStore) GetUsageTotals(ctx context.Context, identityID string) (*UsageTotals, error) {
	query := s.dialect.rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(total_tokens), 0)
		FROM completion_usage
		WHERE identity_id = ?
	`)

	var totals UsageTotals
	err := s.db.QueryRowContext(ctx, query, identityID).Scan(
		&totals.Completions,
		&totals.PromptTokens,
		&totals.CompletionTokens,
		&totals.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}

	return &totals, nil
}
