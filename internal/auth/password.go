// ABOUTME: bcrypt password hashing with the 72-byte input limit applied up front
// ABOUTME: VerifyDummy burns the same time as a real comparison for unknown accounts

package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the longest input bcrypt considers.
const maxPasswordBytes = 72

// dummyHash is compared against when the account doesn't exist so that
// response timing does not reveal which emails are registered.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// PasswordHasher hashes and verifies passwords. The zero value is not usable;
// build one with NewPasswordHasher.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher with the given bcrypt cost.
// A cost of 0 selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordHasher{cost: cost}, nil
}

// Hash returns the bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(truncate(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), truncate(plain))
	return err == nil
}

// VerifyDummy runs a comparison against a fixed hash and always returns false.
func (h *PasswordHasher) VerifyDummy(plain string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash, truncate(plain))
	return false
}

func truncate(plain string) []byte {
	b := []byte(plain)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
