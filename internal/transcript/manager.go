// ABOUTME: Transcript manager owning the single conversation document per identity
// ABOUTME: Append-or-create, greeting seeding, clear-to-last and read operations

package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/store"
)

// Greeting is the assistant message every new transcript starts with.
const Greeting = "Привет! Я твой виртуальный помощник Метроша. Чем могу помочь?"

// Store is the persistence the manager needs: the transcript documents and
// the identity back-pointer.
type Store interface {
	store.TranscriptStore
	LinkTranscript(ctx context.Context, identityID, transcriptID string) error
}

// Config holds the manager's collaborators.
type Config struct {
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager reads and mutates transcripts. Concurrent writers for the same
// identity are not serialized: each save replaces the whole document, so
// the last writer wins.
type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Manager.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:  cfg.Store,
		logger: logger.With("component", "transcript"),
		now:    now,
	}
}

// EnsureGreeting creates the identity's transcript seeded with Greeting if it
// has none, and makes sure the identity points at it. Calling it again is a
// no-op, including when two callers race on creation.
func (m *Manager) EnsureGreeting(ctx context.Context, identityID string) (*store.Transcript, error) {
	t, err := m.store.GetTranscriptByIdentity(ctx, identityID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		t, err = m.create(ctx, identityID, []store.Message{{Role: store.MessageRoleAI, Content: Greeting}}, true)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("getting transcript: %w", err))
	}

	if err := m.store.LinkTranscript(ctx, identityID, t.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindIdentityNotFound, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("linking transcript: %w", err))
	}

	return t, nil
}

// Append adds msgs to the end of the identity's transcript in the given
// order, creating the transcript with exactly msgs if it doesn't exist.
// No deduplication or reordering takes place.
func (m *Manager) Append(ctx context.Context, identityID string, msgs ...store.Message) (*store.Transcript, error) {
	if len(msgs) == 0 {
		return m.Read(ctx, identityID)
	}

	t, err := m.store.GetTranscriptByIdentity(ctx, identityID)
	if errors.Is(err, store.ErrNotFound) {
		return m.create(ctx, identityID, msgs, false)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("getting transcript: %w", err))
	}

	t.Messages = append(t.Messages, msgs...)
	t.UpdatedAt = m.now().UTC()

	if err := m.store.SaveTranscript(ctx, t); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("saving transcript: %w", err))
	}

	m.logger.Debug("appended messages", "identity_id", identityID, "count", len(msgs), "total", len(t.Messages))
	return t, nil
}

// Clear collapses the transcript to its most recent message. An empty
// transcript stays empty.
func (m *Manager) Clear(ctx context.Context, identityID string) (*store.Transcript, error) {
	t, err := m.Read(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if len(t.Messages) > 1 {
		t.Messages = []store.Message{t.Messages[len(t.Messages)-1]}
	}
	t.UpdatedAt = m.now().UTC()

	if err := m.store.SaveTranscript(ctx, t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindTranscriptNotFound, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("saving transcript: %w", err))
	}

	m.logger.Info("cleared transcript", "identity_id", identityID)
	return t, nil
}

// Read returns the identity's transcript.
func (m *Manager) Read(ctx context.Context, identityID string) (*store.Transcript, error) {
	t, err := m.store.GetTranscriptByIdentity(ctx, identityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindTranscriptNotFound, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("getting transcript: %w", err))
	}
	return t, nil
}

// create inserts a new transcript. If another writer created one first, the
// messages are appended to theirs instead, unless they are only the greeting
// seed, which the existing transcript already carries.
func (m *Manager) create(ctx context.Context, identityID string, msgs []store.Message, seed bool) (*store.Transcript, error) {
	now := m.now().UTC()
	t := &store.Transcript{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Messages:   msgs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := m.store.CreateTranscript(ctx, t)
	if errors.Is(err, store.ErrDuplicate) {
		existing, getErr := m.store.GetTranscriptByIdentity(ctx, identityID)
		if getErr != nil {
			return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("getting transcript after race: %w", getErr))
		}
		if seed {
			return existing, nil
		}
		existing.Messages = append(existing.Messages, msgs...)
		existing.UpdatedAt = now
		if err := m.store.SaveTranscript(ctx, existing); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("saving transcript: %w", err))
		}
		return existing, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("creating transcript: %w", err))
	}

	m.logger.Info("created transcript", "identity_id", identityID, "transcript_id", t.ID)
	return t, nil
}
