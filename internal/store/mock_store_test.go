// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLStore
// ABOUTME: Focuses on copy isolation and edge cases specific to the in-memory implementation

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_IdentityCopiesAreIsolated(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	identity := testIdentity("id-1", "iso@example.com")
	require.NoError(t, store.CreateIdentity(ctx, identity))

	// Mutating the caller's value must not leak into the store
	identity.Role = RoleManagement

	got, err := store.GetIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, got.Role)

	got.Age = 99
	again, err := store.GetIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, 20, again.Age)
}

func TestMockStore_TranscriptCopiesAreIsolated(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	now := time.Now().UTC()

	transcript := &Transcript{
		ID:         "t-1",
		IdentityID: "id-1",
		Messages:   []Message{{Role: MessageRoleAI, Content: "hello"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.CreateTranscript(ctx, transcript))

	transcript.Messages[0].Content = "tampered"

	got, err := store.GetTranscriptByIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Messages[0].Content)

	got.Messages[0].Content = "tampered again"
	again, err := store.GetTranscriptByIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
}

func TestMockStore_SaveTranscriptKeepsIdentityFields(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.CreateTranscript(ctx, &Transcript{
		ID: "t-1", IdentityID: "id-1", CreatedAt: created, UpdatedAt: created,
	}))

	require.NoError(t, store.SaveTranscript(ctx, &Transcript{
		ID:         "ignored",
		IdentityID: "id-1",
		Messages:   []Message{{Role: MessageRoleUser, Content: "q"}},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}))

	got, err := store.GetTranscriptByIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Len(t, got.Messages, 1)
}

func TestMockStore_DuplicateID(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateIdentity(ctx, testIdentity("id-1", "a@example.com")))
	err := store.CreateIdentity(ctx, testIdentity("id-1", "b@example.com"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMockStore_Ping(t *testing.T) {
	store := NewMockStore()
	assert.NoError(t, store.Ping(context.Background()))

	store.PingErr = errors.New("down")
	assert.EqualError(t, store.Ping(context.Background()), "down")
}
