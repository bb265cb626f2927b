// ABOUTME: Tests for completion token usage tracking
// ABOUTME: Covers SaveUsage and GetUsageTotals against the SQLite store

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_SaveUsage_DuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	usage := &CompletionUsage{
		ID:               uuid.New().String(),
		IdentityID:       "id-1",
		Role:             RoleRetraining,
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.SaveUsage(ctx, usage))
	assert.Error(t, store.SaveUsage(ctx, usage))
}

func TestSQLStore_GetUsageTotals_SurvivesIdentityDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIdentity(ctx, testIdentity("id-1", "usage@example.com")))
	require.NoError(t, store.SaveUsage(ctx, &CompletionUsage{
		ID:          uuid.New().String(),
		IdentityID:  "id-1",
		Role:        RoleStudent,
		TotalTokens: 7,
		CreatedAt:   time.Now().UTC(),
	}))
	require.NoError(t, store.DeleteIdentity(ctx, "id-1"))

	totals, err := store.GetUsageTotals(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Completions)
	assert.Equal(t, 7, totals.TotalTokens)
}
