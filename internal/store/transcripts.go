// ABOUTME: Transcript document persistence for the SQL store
// ABOUTME: The ordered message list is serialized as one JSON array per identity

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateTranscript inserts the transcript document for an identity.
// Returns ErrDuplicate if the identity already has one.
func (s *SQLStore) CreateTranscript(ctx context.Context, transcript *Transcript) error {
	messages, err := encodeMessages(transcript.Messages)
	if err != nil {
		return err
	}

	query := s.dialect.rebind(`
		INSERT INTO transcripts (id, identity_id, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err = s.db.ExecContext(ctx, query,
		transcript.ID,
		transcript.IdentityID,
		messages,
		formatTime(transcript.CreatedAt),
		formatTime(transcript.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting transcript: %w", err)
	}

	s.logger.Debug("created transcript",
		"id", transcript.ID,
		"identity_id", transcript.IdentityID,
		"messages", len(transcript.Messages))
	return nil
}

// GetTranscriptByIdentity retrieves the transcript owned by an identity.
// Returns ErrNotFound if none exists yet.
func (s *SQLStore) GetTranscriptByIdentity(ctx context.Context, identityID string) (*Transcript, error) {
	query := s.dialect.rebind(`
		SELECT id, identity_id, messages, created_at, updated_at
		FROM transcripts
		WHERE identity_id = ?
	`)

	var transcript Transcript
	var messages, createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, identityID).Scan(
		&transcript.ID,
		&transcript.IdentityID,
		&messages,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}

	if transcript.Messages, err = decodeMessages(messages); err != nil {
		return nil, err
	}
	if transcript.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if transcript.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &transcript, nil
}

// SaveTranscript overwrites the stored message list of an existing transcript.
// There is no version check: concurrent saves are last-writer-wins.
// Returns ErrNotFound if the transcript doesn't exist.
func (s *SQLStore) SaveTranscript(ctx context.Context, transcript *Transcript) error {
	messages, err := encodeMessages(transcript.Messages)
	if err != nil {
		return err
	}

	query := s.dialect.rebind(`
		UPDATE transcripts SET messages = ?, updated_at = ?
		WHERE identity_id = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		messages,
		formatTime(transcript.UpdatedAt),
		transcript.IdentityID,
	)
	if err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}

	if err := requireRow(result); err != nil {
		return err
	}

	s.logger.Debug("saved transcript",
		"identity_id", transcript.IdentityID,
		"messages", len(transcript.Messages))
	return nil
}

func encodeMessages(messages []Message) (string, error) {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encoding messages: %w", err)
	}
	return string(data), nil
}

func decodeMessages(data string) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("decoding messages: %w", err)
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}
