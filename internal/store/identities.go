// ABOUTME: Identity persistence for the SQL store
// ABOUTME: Create/read/update/delete of user records plus the one-shot transcript link

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const identityColumns = `id, email, first_name, last_name, password_hash, role, age, gender, transcript_id, created_at, updated_at`

// CreateIdentity inserts a new identity.
// Returns ErrDuplicate if the email is already registered.
func (s *SQLStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	query := s.dialect.rebind(`
		INSERT INTO identities (` + identityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		identity.PasswordHash,
		string(identity.Role),
		identity.Age,
		string(identity.Gender),
		identity.TranscriptID,
		formatTime(identity.CreatedAt),
		formatTime(identity.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	s.logger.Debug("created identity", "id", identity.ID)
	return nil
}

// GetIdentity retrieves an identity by its stable ID.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	query := s.dialect.rebind(`SELECT ` + identityColumns + ` FROM identities WHERE id = ?`)
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, id))
}

// GetIdentityByEmail retrieves an identity by email. The comparison is
// case-sensitive: emails are matched exactly as stored.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	query := s.dialect.rebind(`SELECT ` + identityColumns + ` FROM identities WHERE email = ?`)
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLStore) scanIdentity(row *sql.Row) (*Identity, error) {
	var identity Identity
	var role, gender, createdAtStr, updatedAtStr string

	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&identity.PasswordHash,
		&role,
		&identity.Age,
		&gender,
		&identity.TranscriptID,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	identity.Role = Role(role)
	identity.Gender = Gender(gender)

	if identity.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if identity.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &identity, nil
}

// UpdateIdentity rewrites the mutable profile fields of an identity.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLStore) UpdateIdentity(ctx context.Context, identity *Identity) error {
	query := s.dialect.rebind(`
		UPDATE identities
		SET first_name = ?, last_name = ?, password_hash = ?, role = ?, age = ?, gender = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		identity.FirstName,
		identity.LastName,
		identity.PasswordHash,
		string(identity.Role),
		identity.Age,
		string(identity.Gender),
		formatTime(identity.UpdatedAt),
		identity.ID,
	)
	if err != nil {
		return fmt.Errorf("updating identity: %w", err)
	}

	if err := requireRow(result); err != nil {
		return err
	}

	s.logger.Debug("updated identity", "id", identity.ID)
	return nil
}

// DeleteIdentity removes an identity. Its transcript is not touched.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLStore) DeleteIdentity(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM identities WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}

	if err := requireRow(result); err != nil {
		return err
	}

	s.logger.Debug("deleted identity", "id", id)
	return nil
}

// LinkTranscript sets the transcript back-pointer once.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLStore) LinkTranscript(ctx context.Context, identityID, transcriptID string) error {
	query := s.dialect.rebind(`
		UPDATE identities SET transcript_id = ?
		WHERE id = ? AND transcript_id = ''
	`)

	result, err := s.db.ExecContext(ctx, query, transcriptID, identityID)
	if err != nil {
		return fmt.Errorf("linking transcript: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.logger.Debug("linked transcript", "identity_id", identityID, "transcript_id", transcriptID)
		return nil
	}

	// Either already linked or missing
	if _, err := s.GetIdentity(ctx, identityID); err != nil {
		return err
	}
	return nil
}

// requireRow maps an UPDATE/DELETE that touched nothing to ErrNotFound.
func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
