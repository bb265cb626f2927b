// ABOUTME: Tagged error kinds surfaced at the service boundary
// ABOUTME: Each kind carries a fixed HTTP status and a stable machine-readable code

package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind classifies a failure. Kinds are comparable values, so callers match
// them with errors.Is(err, apperr.KindIdentityNotFound).
type Kind int

const (
	KindInternal Kind = iota
	KindDuplicateIdentity
	KindInvalidCredentials
	KindIdentityNotFound
	KindTranscriptNotFound
	KindCompletionFailure
	KindMalformedInput
)

type kindInfo struct {
	code   string
	status int
	detail string
}

var kinds = map[Kind]kindInfo{
	KindInternal:           {"internal", http.StatusInternalServerError, "Internal server error."},
	KindDuplicateIdentity:  {"duplicate_identity", http.StatusConflict, "Login already exists."},
	KindInvalidCredentials: {"invalid_credentials", http.StatusUnauthorized, "Incorrect login or password."},
	KindIdentityNotFound:   {"identity_not_found", http.StatusNotFound, "User not found."},
	KindTranscriptNotFound: {"transcript_not_found", http.StatusNotFound, "History not found."},
	KindCompletionFailure:  {"completion_failure", http.StatusBadGateway, "The assistant could not answer. Please try again."},
	KindMalformedInput:     {"malformed_input", http.StatusUnprocessableEntity, "Malformed input."},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// String returns the machine-readable code, e.g. "identity_not_found".
func (k Kind) String() string { return k.info().code }

// Status returns the HTTP status associated with the kind.
func (k Kind) Status() int { return k.info().status }

// DefaultDetail is the human-readable message used when none is supplied.
func (k Kind) DefaultDetail() string { return k.info().detail }

// Error lets a bare Kind be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is a single failure. A new value is built for every failure; values
// are never shared between requests.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// New builds an Error of the given kind. An empty detail uses the kind's default.
func New(kind Kind, detail string) *Error {
	if detail == "" {
		detail = kind.DefaultDetail()
	}
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error of the given kind around an underlying cause.
// The cause is kept for logging and errors.Is, never shown to clients.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Detail: kind.DefaultDetail(), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Detail + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf extracts the Kind from err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the client-safe message for err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return KindInternal.DefaultDetail()
}

// Body is the JSON error envelope written to HTTP clients.
type Body struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// WriteHTTP writes err as a JSON error response with the status of its kind.
func WriteHTTP(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.Status())
	_ = json.NewEncoder(w).Encode(Body{Error: kind.String(), Detail: DetailOf(err)})
}
