// ABOUTME: Tests for the tagged error kinds
// ABOUTME: Covers status mapping, errors.Is matching, and the JSON envelope

package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		code   string
	}{
		{KindDuplicateIdentity, http.StatusConflict, "duplicate_identity"},
		{KindInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{KindIdentityNotFound, http.StatusNotFound, "identity_not_found"},
		{KindTranscriptNotFound, http.StatusNotFound, "transcript_not_found"},
		{KindCompletionFailure, http.StatusBadGateway, "completion_failure"},
		{KindMalformedInput, http.StatusUnprocessableEntity, "malformed_input"},
		{KindInternal, http.StatusInternalServerError, "internal"},
		{Kind(99), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.code, tt.kind.String())
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("loading user: %w", New(KindIdentityNotFound, ""))

	assert.True(t, errors.Is(err, KindIdentityNotFound))
	assert.False(t, errors.Is(err, KindTranscriptNotFound))
	assert.Equal(t, KindIdentityNotFound, KindOf(err))
	assert.Equal(t, "User not found.", DetailOf(err))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, KindInternal))
	assert.Equal(t, KindInternal.DefaultDetail(), err.Detail)
}

func TestNew_FreshValues(t *testing.T) {
	a := New(KindInvalidCredentials, "")
	b := New(KindInvalidCredentials, "")

	assert.NotSame(t, a, b)
	a.Detail = "changed"
	assert.Equal(t, "Incorrect login or password.", b.Detail)
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal.DefaultDetail(), DetailOf(errors.New("boom")))
}

func TestWriteHTTP(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, New(KindDuplicateIdentity, ""))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "duplicate_identity", body.Error)
	assert.Equal(t, "Login already exists.", body.Detail)
}
