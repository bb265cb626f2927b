// ABOUTME: Tests for bcrypt password hashing
// ABOUTME: Covers round trip, mismatch, truncation and the dummy comparison

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, h.Verify("correct horse", hash))
	assert.False(t, h.Verify("wrong horse", hash))
	assert.False(t, h.Verify("correct horse", "not-a-hash"))
}

func TestPasswordHasher_TruncatesTo72Bytes(t *testing.T) {
	h := newTestHasher(t)

	long := strings.Repeat("a", 72)
	hash, err := h.Hash(long + "tail-one")
	require.NoError(t, err)

	assert.True(t, h.Verify(long+"tail-two", hash))
	assert.True(t, h.Verify(long, hash))
	assert.False(t, h.Verify(long[:71], hash))
}

func TestPasswordHasher_VerifyDummy(t *testing.T) {
	h := newTestHasher(t)
	assert.False(t, h.VerifyDummy("anything"))
	assert.False(t, h.VerifyDummy(""))
}

func TestNewPasswordHasher_Cost(t *testing.T) {
	h, err := NewPasswordHasher(0)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	_, err = NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}
