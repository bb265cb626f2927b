// ABOUTME: Tests for the PostgreSQL flavour of the SQL store
// ABOUTME: Placeholder rebinding is unit tested; the live test needs METROSHA_TEST_POSTGRES_DSN

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
		{"UPDATE t SET a = ?, b = ? WHERE id = ?", "UPDATE t SET a = $1, b = $2 WHERE id = $3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rebindDollar(tt.in))
	}
}

func TestIsPostgresUniqueViolation(t *testing.T) {
	assert.True(t, isPostgresUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isPostgresUniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, isPostgresUniqueViolation(errors.New("UNIQUE constraint failed")))
}

func TestRunPostgresMigrations_UsesEmbeddedDir(t *testing.T) {
	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, runPostgresMigrations(context.Background(), nil))
	assert.Equal(t, "migrations", gotDir)

	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPostgresStore_Live(t *testing.T) {
	dsn := os.Getenv("METROSHA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("METROSHA_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	id := uuid.New().String()
	email := id + "@example.com"
	require.NoError(t, s.CreateIdentity(ctx, testIdentity(id, email)))
	defer s.DeleteIdentity(ctx, id)

	assert.ErrorIs(t, s.CreateIdentity(ctx, testIdentity(uuid.New().String(), email)), ErrDuplicate)

	now := time.Now().UTC()
	require.NoError(t, s.CreateTranscript(ctx, &Transcript{
		ID:         uuid.New().String(),
		IdentityID: id,
		Messages:   []Message{{Role: MessageRoleAI, Content: "hi"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	defer s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE identity_id = $1`, id)

	got, err := s.GetTranscriptByIdentity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Messages[0].Content)
}
