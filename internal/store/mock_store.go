// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
// Documents are copied on the way in and on the way out so callers can
// never mutate stored state behind the store's back.
type MockStore struct {
	mu          sync.RWMutex
	identities  map[string]*Identity   // keyed by identity ID
	emailIndex  map[string]string      // keyed by email -> identity ID
	transcripts map[string]*Transcript // keyed by identity ID
	usage       []*CompletionUsage

	// PingErr is returned by Ping when set
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identities:  make(map[string]*Identity),
		emailIndex:  make(map[string]string),
		transcripts: make(map[string]*Transcript),
	}
}

// CreateIdentity stores a new identity.
func (m *MockStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.emailIndex[identity.Email]; exists {
		return ErrDuplicate
	}
	if _, exists := m.identities[identity.ID]; exists {
		return ErrDuplicate
	}

	i := *identity
	m.identities[i.ID] = &i
	m.emailIndex[i.Email] = i.ID
	return nil
}

// GetIdentity retrieves an identity by ID.
func (m *MockStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *i
	return &out, nil
}

// GetIdentityByEmail retrieves an identity by exact email.
func (m *MockStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emailIndex[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m.identities[id]
	return &out, nil
}

// UpdateIdentity rewrites the mutable fields of an identity.
func (m *MockStore) UpdateIdentity(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.identities[identity.ID]
	if !ok {
		return ErrNotFound
	}

	existing.FirstName = identity.FirstName
	existing.LastName = identity.LastName
	existing.PasswordHash = identity.PasswordHash
	existing.Role = identity.Role
	existing.Age = identity.Age
	existing.Gender = identity.Gender
	existing.UpdatedAt = identity.UpdatedAt
	return nil
}

// DeleteIdentity removes an identity.
func (m *MockStore) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.emailIndex, i.Email)
	delete(m.identities, id)
	return nil
}

// LinkTranscript sets the back-pointer if it is still empty.
func (m *MockStore) LinkTranscript(ctx context.Context, identityID, transcriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.identities[identityID]
	if !ok {
		return ErrNotFound
	}
	if i.TranscriptID == "" {
		i.TranscriptID = transcriptID
	}
	return nil
}

// CreateTranscript stores a new transcript document.
func (m *MockStore) CreateTranscript(ctx context.Context, transcript *Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transcripts[transcript.IdentityID]; exists {
		return ErrDuplicate
	}
	m.transcripts[transcript.IdentityID] = copyTranscript(transcript)
	return nil
}

// GetTranscriptByIdentity retrieves the transcript of an identity.
func (m *MockStore) GetTranscriptByIdentity(ctx context.Context, identityID string) (*Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transcripts[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTranscript(t), nil
}

// SaveTranscript overwrites the stored messages of a transcript.
func (m *MockStore) SaveTranscript(ctx context.Context, transcript *Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transcripts[transcript.IdentityID]
	if !ok {
		return ErrNotFound
	}
	updated := copyTranscript(transcript)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	m.transcripts[transcript.IdentityID] = updated
	return nil
}

// SaveUsage records a usage entry.
func (m *MockStore) SaveUsage(ctx context.Context, usage *CompletionUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *usage
	m.usage = append(m.usage, &u)
	return nil
}

// GetUsageTotals sums the usage entries of an identity.
func (m *MockStore) GetUsageTotals(ctx context.Context, identityID string) (*UsageTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totals UsageTotals
	for _, u := range m.usage {
		if u.IdentityID != identityID {
			continue
		}
		totals.Completions++
		totals.PromptTokens += u.PromptTokens
		totals.CompletionTokens += u.CompletionTokens
		totals.TotalTokens += u.TotalTokens
	}
	return &totals, nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func copyTranscript(t *Transcript) *Transcript {
	out := *t
	out.Messages = make([]Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	return &out
}
