// ABOUTME: HTTP API handlers for registration, login, identity self-service and transcripts
// ABOUTME: Every failure is written as an apperr JSON envelope with the kind's status

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/metrosha-gateway/internal/account"
	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/store"
	"github.com/2389/metrosha-gateway/internal/transcript"
)

// maxBodyBytes caps JSON and form request bodies.
const maxBodyBytes = 1 << 20

// RegisterResponse is the JSON response for POST /api/user/create.
type RegisterResponse struct {
	UserToken string `json:"user_token"`
}

// TokenResponse is the JSON response for POST /api/user/login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// IdentityResponse is the JSON form of an identity. The password hash is
// never included.
type IdentityResponse struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Role         store.Role   `json:"role"`
	Age          int          `json:"age"`
	Gender       store.Gender `json:"gender"`
	TranscriptID string       `json:"transcript_id,omitempty"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
}

// HistoryResponse is the JSON response for the transcript endpoints.
type HistoryResponse struct {
	UserID   string          `json:"user_id"`
	Messages []store.Message `json:"messages"`
}

// UsageResponse is the JSON response for GET /api/ai/usage.
type UsageResponse struct {
	UserID           string `json:"user_id"`
	Completions      int    `json:"completions"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

func identityResponse(i *store.Identity) IdentityResponse {
	return IdentityResponse{
		ID:           i.ID,
		Email:        i.Email,
		FirstName:    i.FirstName,
		LastName:     i.LastName,
		Role:         i.Role,
		Age:          i.Age,
		Gender:       i.Gender,
		TranscriptID: i.TranscriptID,
		CreatedAt:    i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    i.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func historyResponse(t *store.Transcript) HistoryResponse {
	msgs := t.Messages
	if msgs == nil {
		msgs = []store.Message{}
	}
	return HistoryResponse{UserID: t.IdentityID, Messages: msgs}
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to encode response", "error", err)
	}
}

// writeError logs internal failures and writes the error envelope.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	apperr.WriteHTTP(w, err)
}

// decodeJSON reads a size-capped JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperr.New(apperr.KindMalformedInput, "could not read request body")
	}
	if len(body) > maxBodyBytes {
		return apperr.New(apperr.KindMalformedInput, "request body too large")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.New(apperr.KindMalformedInput, fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// handlePing handles GET /api/system/ping.
func (g *Gateway) handlePing(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, "pong")
}

// handleRegister handles POST /api/user/create.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	token, err := g.accounts.Register(r.Context(), req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, RegisterResponse{UserToken: token})
}

// handleLogin handles POST /api/user/login. It takes an OAuth2 password form
// (username, password).
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		g.writeError(w, r, apperr.New(apperr.KindMalformedInput, "invalid form body"))
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		g.writeError(w, r, apperr.New(apperr.KindMalformedInput, "username and password are required"))
		return
	}

	token, err := g.accounts.Login(r.Context(), username, password)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInvalidCredentials {
			g.metrics.AuthFailure("login")
		}
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// handleGetIdentity handles GET /api/user/.
func (g *Gateway) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	identity, err := g.accounts.Get(r.Context(), caller.Email)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, identityResponse(identity))
}

// handleUpdateIdentity handles PATCH /api/user/.
func (g *Gateway) handleUpdateIdentity(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	var req account.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	identity, err := g.accounts.Update(r.Context(), caller.Email, req)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, identityResponse(identity))
}

// handleDeleteIdentity handles DELETE /api/user/. The body is the bare
// status code, as existing clients expect.
func (g *Gateway) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	if err := g.accounts.Delete(r.Context(), caller.Email); err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, http.StatusOK)
}

// handleGetHistory handles GET /api/ai/history. With ?format=html the
// transcript is rendered as a standalone HTML page.
func (g *Gateway) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	t, err := g.transcripts.Read(r.Context(), caller.IdentityID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		g.writeJSON(w, http.StatusOK, historyResponse(t))
	case "html":
		page, err := transcript.RenderHTML(t)
		if err != nil {
			g.writeError(w, r, apperr.Wrap(apperr.KindInternal, err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	default:
		g.writeError(w, r, apperr.New(apperr.KindMalformedInput, "format must be json or html"))
	}
}

// handleClearHistory handles DELETE /api/ai/history.
func (g *Gateway) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	t, err := g.transcripts.Clear(r.Context(), caller.IdentityID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, historyResponse(t))
}

// handleGetUsage handles GET /api/ai/usage: the caller's completion token
// totals across all sessions.
func (g *Gateway) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context())

	totals, err := g.store.GetUsageTotals(r.Context(), caller.IdentityID)
	if err != nil {
		g.writeError(w, r, apperr.Wrap(apperr.KindInternal, fmt.Errorf("getting usage totals: %w", err)))
		return
	}
	g.writeJSON(w, http.StatusOK, UsageResponse{
		UserID:           caller.IdentityID,
		Completions:      totals.Completions,
		PromptTokens:     totals.PromptTokens,
		CompletionTokens: totals.CompletionTokens,
		TotalTokens:      totals.TotalTokens,
	})
}
