// ABOUTME: Tests for the authentication gate
// ABOUTME: Registration, login, token resolution and identity self-service against MockStore

package account

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/store"
	"github.com/2389/metrosha-gateway/internal/transcript"
)

var testSecret = []byte("account-service-test-secret-32b!")

type fixture struct {
	svc         *Service
	store       *store.MockStore
	transcripts *transcript.Manager
	tokens      *auth.TokenService
}

func newFixture(t *testing.T, alg string) *fixture {
	t.Helper()
	s := store.NewMockStore()
	tokens, err := auth.NewTokenService(testSecret, alg)
	require.NoError(t, err)
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	transcripts := transcript.New(transcript.Config{Store: s})

	svc := New(Config{
		Store:   s,
		Greeter: transcripts,
		Tokens:  tokens,
		Hasher:  hasher,
	})
	return &fixture{svc: svc, store: s, transcripts: transcripts, tokens: tokens}
}

func validRegistration(email string) RegisterRequest {
	return RegisterRequest{
		FirstName: "Ivan",
		LastName:  "Petrov",
		Password:  "s3cret-pass",
		Email:     email,
		Role:      store.RoleStudent,
		Age:       19,
		Gender:    store.GenderMale,
	}
}

func TestRegister_CreatesIdentityAndGreeting(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	token, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	sub, err := f.tokens.ValidateHeader(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", sub)

	identity, err := f.store.GetIdentityByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", identity.PasswordHash)
	assert.NotEmpty(t, identity.TranscriptID)

	tr, err := f.transcripts.Read(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.Message{{Role: store.MessageRoleAI, Content: transcript.Greeting}}, tr.Messages)
}

func TestRegister_TokenLivesOneDay(t *testing.T) {
	f := newFixture(t, "HS256")

	token, err := f.svc.Register(context.Background(), validRegistration("a@x.io"))
	require.NoError(t, err)

	almost := f.tokens.WithClock(func() time.Time { return time.Now().Add(SessionTTL - time.Minute) })
	_, err = almost.ValidateHeader(token)
	assert.NoError(t, err)

	later := f.tokens.WithClock(func() time.Time { return time.Now().Add(SessionTTL + time.Minute) })
	_, err = later.ValidateHeader(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	again := validRegistration("a@x.io")
	again.Password = "other"
	_, err = f.svc.Register(ctx, again)
	assert.ErrorIs(t, err, apperr.KindDuplicateIdentity)

	// Stored record unchanged
	identity, err := f.store.GetIdentityByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "a@x.io", "s3cret-pass")
	assert.NoError(t, err)
	assert.Equal(t, "Ivan", identity.FirstName)
}

// racingStore reports ErrNotFound on the pre-check, then ErrDuplicate on
// insert, as happens when two registrations for one email interleave.
type racingStore struct {
	*store.MockStore
}

func (r racingStore) GetIdentityByEmail(ctx context.Context, email string) (*store.Identity, error) {
	return nil, store.ErrNotFound
}

func (r racingStore) CreateIdentity(ctx context.Context, identity *store.Identity) error {
	return store.ErrDuplicate
}

func TestRegister_InsertRaceIsDuplicate(t *testing.T) {
	f := newFixture(t, "HS256")
	f.svc.store = racingStore{MockStore: f.store}

	_, err := f.svc.Register(context.Background(), validRegistration("a@x.io"))
	assert.ErrorIs(t, err, apperr.KindDuplicateIdentity)
}

func TestRegister_MalformedInput(t *testing.T) {
	f := newFixture(t, "HS256")

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"bad role", func(r *RegisterRequest) { r.Role = "admin" }},
		{"bad gender", func(r *RegisterRequest) { r.Gender = "other" }},
		{"missing email", func(r *RegisterRequest) { r.Email = " " }},
		{"missing password", func(r *RegisterRequest) { r.Password = "" }},
		{"negative age", func(r *RegisterRequest) { r.Age = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegistration("m@x.io")
			tt.mutate(&req)
			_, err := f.svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, apperr.KindMalformedInput)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	token, err := f.svc.Login(ctx, "a@x.io", "s3cret-pass")
	require.NoError(t, err)
	identity, err := f.svc.ResolveIdentity(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", identity.Email)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "a@x.io", "wrong")
	_, unknownEmail := f.svc.Login(ctx, "nobody@x.io", "s3cret-pass")

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(wrongPassword))
	assert.Equal(t, apperr.KindOf(wrongPassword), apperr.KindOf(unknownEmail))
	assert.Equal(t, apperr.DetailOf(wrongPassword), apperr.DetailOf(unknownEmail))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_LongPasswordTruncated(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	req := validRegistration("long@x.io")
	req.Password = strings.Repeat("p", 72) + "-suffix"
	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "long@x.io", strings.Repeat("p", 72)+"-different")
	assert.NoError(t, err)
}

func TestResolveIdentity_Failures(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	ghostToken, err := f.tokens.Issue("ghost@x.io", time.Hour)
	require.NoError(t, err)

	expired, err := f.tokens.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).Issue("a@x.io", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":     "not-a-token",
		"unknown sub": ghostToken,
		"expired":     expired,
		"empty":       "",
		"tampered":    ghostToken + "x",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ResolveIdentity(ctx, token)
			assert.ErrorIs(t, err, apperr.KindInvalidCredentials)
			assert.Equal(t, "Incorrect login or password.", apperr.DetailOf(err))
		})
	}
}

func TestResolveStreamIdentity_PinsHS256(t *testing.T) {
	f := newFixture(t, "HS512")
	ctx := context.Background()

	token, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	_, err = f.svc.ResolveIdentity(ctx, token)
	require.NoError(t, err)

	_, err = f.svc.ResolveStreamIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.KindInvalidCredentials)

	hs256, err := auth.NewTokenService(testSecret, "HS256")
	require.NoError(t, err)
	streamToken, err := hs256.Issue("a@x.io", time.Hour)
	require.NoError(t, err)

	identity, err := f.svc.ResolveStreamIdentity(ctx, streamToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", identity.Email)
}

func TestGetUpdate(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	_, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "a@x.io", UpdateRequest{
		Role:   store.RoleManagement,
		Age:    45,
		Gender: store.GenderFemale,
	})
	require.NoError(t, err)
	assert.Equal(t, store.RoleManagement, updated.Role)

	got, err := f.svc.Get(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, store.RoleManagement, got.Role)
	assert.Equal(t, 45, got.Age)
	assert.Equal(t, store.GenderFemale, got.Gender)
	assert.Equal(t, "Ivan", got.FirstName)

	_, err = f.svc.Update(ctx, "a@x.io", UpdateRequest{Role: "boss", Gender: store.GenderMale})
	assert.ErrorIs(t, err, apperr.KindMalformedInput)
}

func TestDelete_TokenNoLongerResolves(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	token, err := f.svc.Register(ctx, validRegistration("a@x.io"))
	require.NoError(t, err)
	identity, err := f.svc.ResolveIdentity(ctx, token)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "a@x.io"))

	// Token itself is still valid, only resolution fails
	_, err = f.tokens.ValidateHeader(token)
	require.NoError(t, err)
	_, err = f.svc.ResolveIdentity(ctx, token)
	assert.ErrorIs(t, err, apperr.KindInvalidCredentials)

	// Transcript is referenced, not owned
	_, err = f.transcripts.Read(ctx, identity.ID)
	assert.NoError(t, err)
}

func TestSelfService_IdentityNotFound(t *testing.T) {
	f := newFixture(t, "HS256")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "gone@x.io")
	assert.ErrorIs(t, err, apperr.KindIdentityNotFound)

	_, err = f.svc.Update(ctx, "gone@x.io", UpdateRequest{Role: store.RoleTeacher, Gender: store.GenderMale})
	assert.ErrorIs(t, err, apperr.KindIdentityNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "gone@x.io"), apperr.KindIdentityNotFound)
}
