// ABOUTME: JWT bearer token issuance and validation for identities
// ABOUTME: HMAC family with a configurable algorithm; the streaming path pins HS256

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// StreamAlgorithm is the only algorithm accepted on the streaming path,
// independent of the configured one.
const StreamAlgorithm = "HS256"

// DefaultTTL applies when Issue is called without a positive lifetime.
const DefaultTTL = 15 * time.Minute

// SupportedAlgorithms lists the HMAC algorithms a TokenService can sign with.
var SupportedAlgorithms = []string{"HS256", "HS384", "HS512"}

// TokenService signs and validates bearer tokens whose subject is the
// identity's email. It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret    []byte
	algorithm string
	method    jwt.SigningMethod
	now       func() time.Time
}

// NewTokenService creates a TokenService for the given secret and algorithm.
func NewTokenService(secret []byte, algorithm string) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}

	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q (want one of %v)", algorithm, SupportedAlgorithms)
	}

	return &TokenService{
		secret:    secret,
		algorithm: algorithm,
		method:    method,
		now:       time.Now,
	}, nil
}

// WithClock returns a copy of the service that reads the current time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	c := *s
	c.now = now
	return &c
}

// Issue creates a token for subject that expires after ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Validate verifies the token's signature and expiry, accepting only the
// listed algorithms, and returns its subject.
// Every failure wraps ErrInvalidToken; expiry additionally wraps ErrExpiredToken.
func (s *TokenService) Validate(tokenString string, allowed []string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods(allowed),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: %w: sub", ErrInvalidToken, ErrMissingClaim)
	}

	return claims.Subject, nil
}

// ValidateHeader validates a token presented in an Authorization header.
func (s *TokenService) ValidateHeader(tokenString string) (string, error) {
	return s.Validate(tokenString, []string{s.algorithm})
}

// ValidateStream validates a token presented when opening a chat stream.
func (s *TokenService) ValidateStream(tokenString string) (string, error) {
	return s.Validate(tokenString, []string{StreamAlgorithm})
}
