// ABOUTME: Authentication gate for registration, login and identity self-service
// ABOUTME: Maps every credential or token failure to a single InvalidCredentials kind

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/store"
)

// SessionTTL is the lifetime of tokens issued by Register and Login.
const SessionTTL = 1440 * time.Minute

// Greeter seeds a new identity's transcript.
type Greeter interface {
	EnsureGreeting(ctx context.Context, identityID string) (*store.Transcript, error)
}

// Config holds the service's collaborators.
type Config struct {
	Store    store.IdentityStore
	Greeter  Greeter
	Tokens   *auth.TokenService
	Hasher   *auth.PasswordHasher
	TokenTTL time.Duration // 0 means SessionTTL
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service implements the authentication gate.
type Service struct {
	store    store.IdentityStore
	greeter  Greeter
	tokens   *auth.TokenService
	hasher   *auth.PasswordHasher
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = SessionTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		greeter:  cfg.Greeter,
		tokens:   cfg.Tokens,
		hasher:   cfg.Hasher,
		tokenTTL: ttl,
		logger:   logger.With("component", "account"),
		now:      now,
	}
}

// RegisterRequest is the input of Register.
type RegisterRequest struct {
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Password  string       `json:"password"`
	Email     string       `json:"email"`
	Role      store.Role   `json:"role"`
	Age       int          `json:"age"`
	Gender    store.Gender `json:"gender"`
}

// Validate checks the request shape before it reaches the core.
func (r RegisterRequest) Validate() error {
	var problems []string
	if strings.TrimSpace(r.Email) == "" {
		problems = append(problems, "email is required")
	}
	if r.Password == "" {
		problems = append(problems, "password is required")
	}
	if !r.Role.Valid() {
		problems = append(problems, fmt.Sprintf("role must be one of %v", store.Roles))
	}
	if !r.Gender.Valid() {
		problems = append(problems, "gender must be male or female")
	}
	if r.Age < 0 {
		problems = append(problems, "age must not be negative")
	}
	if len(problems) > 0 {
		return apperr.New(apperr.KindMalformedInput, strings.Join(problems, "; "))
	}
	return nil
}

// UpdateRequest carries the mutable identity fields.
type UpdateRequest struct {
	Role   store.Role   `json:"new_role"`
	Age    int          `json:"new_age"`
	Gender store.Gender `json:"new_gender"`
}

// Validate checks the request shape before it reaches the core.
func (r UpdateRequest) Validate() error {
	var problems []string
	if !r.Role.Valid() {
		problems = append(problems, fmt.Sprintf("new_role must be one of %v", store.Roles))
	}
	if !r.Gender.Valid() {
		problems = append(problems, "new_gender must be male or female")
	}
	if r.Age < 0 {
		problems = append(problems, "new_age must not be negative")
	}
	if len(problems) > 0 {
		return apperr.New(apperr.KindMalformedInput, strings.Join(problems, "; "))
	}
	return nil
}

// Register creates an identity, seeds its transcript with the greeting and
// returns a session token whose subject is the email.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	_, err := s.store.GetIdentityByEmail(ctx, req.Email)
	if err == nil {
		return "", apperr.New(apperr.KindDuplicateIdentity, "")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", apperr.Wrap(apperr.KindInternal, fmt.Errorf("looking up email: %w", err))
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err)
	}

	now := s.now().UTC()
	identity := &store.Identity{
		ID:           uuid.New().String(),
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         req.Role,
		Age:          req.Age,
		Gender:       req.Gender,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", apperr.Wrap(apperr.KindDuplicateIdentity, err)
		}
		return "", apperr.Wrap(apperr.KindInternal, fmt.Errorf("creating identity: %w", err))
	}

	if _, err := s.greeter.EnsureGreeting(ctx, identity.ID); err != nil {
		// The session seeds the greeting on first connect if this failed
		s.logger.Warn("failed to seed greeting", "identity_id", identity.ID, "error", err)
	}

	s.logger.Info("registered identity", "identity_id", identity.ID, "role", identity.Role)
	return s.IssueToken(identity.Email)
}

// Login verifies the password and returns a session token. Unknown email and
// wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	identity, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return "", apperr.Wrap(apperr.KindInternal, fmt.Errorf("looking up email: %w", err))
		}
		s.hasher.VerifyDummy(password)
		return "", apperr.New(apperr.KindInvalidCredentials, "")
	}

	if !s.hasher.Verify(password, identity.PasswordHash) {
		return "", apperr.New(apperr.KindInvalidCredentials, "")
	}

	return s.IssueToken(identity.Email)
}

// IssueToken mints a session token for email without checking a password.
func (s *Service) IssueToken(email string) (string, error) {
	token, err := s.tokens.Issue(email, s.tokenTTL)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err)
	}
	return token, nil
}

// ResolveIdentity validates a header token and returns the identity it names.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (*store.Identity, error) {
	return s.resolve(ctx, token, s.tokens.ValidateHeader)
}

// ResolveStreamIdentity validates a stream handshake token and returns the
// identity it names.
func (s *Service) ResolveStreamIdentity(ctx context.Context, token string) (*store.Identity, error) {
	return s.resolve(ctx, token, s.tokens.ValidateStream)
}

func (s *Service) resolve(ctx context.Context, token string, validate func(string) (string, error)) (*store.Identity, error) {
	email, err := validate(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidCredentials, err)
	}

	identity, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindInvalidCredentials, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("looking up email: %w", err))
	}
	return identity, nil
}

// Get re-reads the caller's current record.
func (s *Service) Get(ctx context.Context, email string) (*store.Identity, error) {
	identity, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindIdentityNotFound, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("looking up email: %w", err))
	}
	return identity, nil
}

// Update changes the caller's role, age and gender.
func (s *Service) Update(ctx context.Context, email string, req UpdateRequest) (*store.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}

	identity.Role = req.Role
	identity.Age = req.Age
	identity.Gender = req.Gender
	identity.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindIdentityNotFound, err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Errorf("updating identity: %w", err))
	}

	s.logger.Info("updated identity", "identity_id", identity.ID, "role", identity.Role)
	return identity, nil
}

// Delete removes the caller's identity. The transcript is left in place and
// tokens already issued stay valid until they expire, but no longer resolve.
func (s *Service) Delete(ctx context.Context, email string) error {
	identity, err := s.Get(ctx, email)
	if err != nil {
		return err
	}

	if err := s.store.DeleteIdentity(ctx, identity.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Wrap(apperr.KindIdentityNotFound, err)
		}
		return apperr.Wrap(apperr.KindInternal, fmt.Errorf("deleting identity: %w", err))
	}

	s.logger.Info("deleted identity", "identity_id", identity.ID)
	return nil
}
