// ABOUTME: Store interfaces and document types for metrosha-gateway persistence
// ABOUTME: Defines Identity, Transcript, Message and CompletionUsage plus the Store contract

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (identity email, or one transcript per identity)
var ErrDuplicate = errors.New("already exists")

// Role is the closed set of identity roles. It selects the assistant profile.
type Role string

const (
	RoleStudent    Role = "student"
	RoleRetraining Role = "retraining"
	RoleTeacher    Role = "teacher"
	RoleManagement Role = "management"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleStudent, RoleRetraining, RoleTeacher, RoleManagement}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Gender is the closed set of accepted gender values.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a known gender value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Identity is an authenticated user record.
type Identity struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Age          int
	Gender       Gender
	TranscriptID string // back-pointer to the transcript, set once
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageRole marks who authored a transcript message.
type MessageRole string

const (
	MessageRoleUser MessageRole = "user"
	MessageRoleAI   MessageRole = "ai"
)

// Message is one entry of a transcript.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Transcript is the single conversation history document of one identity.
// It is keyed by the identity's stable ID, not its email.
type Transcript struct {
	ID         string
	IdentityID string
	Messages   []Message
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CompletionUsage records token consumption of one successful completion.
type CompletionUsage struct {
	ID               string
	IdentityID       string
	Role             Role
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CreatedAt        time.Time
}

// UsageTotals aggregates CompletionUsage rows for an identity.
type UsageTotals struct {
	Completions      int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// IdentityStore owns identity records. It performs no logic beyond
// existence and uniqueness checks.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateIdentity(ctx context.Context, identity *Identity) error
	DeleteIdentity(ctx context.Context, id string) error

	// LinkTranscript sets the identity's transcript back-pointer if it is
	// still empty. An already linked identity is left untouched.
	LinkTranscript(ctx context.Context, identityID, transcriptID string) error
}

// TranscriptStore owns transcript documents, one per identity.
type TranscriptStore interface {
	CreateTranscript(ctx context.Context, transcript *Transcript) error
	GetTranscriptByIdentity(ctx context.Context, identityID string) (*Transcript, error)
	SaveTranscript(ctx context.Context, transcript *Transcript) error
}

// UsageStore records completion token usage for analytics.
type UsageStore interface {
	SaveUsage(ctx context.Context, usage *CompletionUsage) error
	GetUsageTotals(ctx context.Context, identityID string) (*UsageTotals, error)
}

// Store is the full persistence contract implemented by SQLStore and MockStore.
type Store interface {
	IdentityStore
	TranscriptStore
	UsageStore

	// Ping checks that the backing database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
