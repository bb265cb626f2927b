// ABOUTME: Session orchestrator driving one authenticated chat connection
// ABOUTME: Handshake auth, greeting, then read -> complete -> append -> reply until close

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/completion"
	"github.com/2389/metrosha-gateway/internal/metrics"
	"github.com/2389/metrosha-gateway/internal/store"
)

// ErrClosed is returned by Conn.Read when the peer has gone away.
var ErrClosed = errors.New("connection closed")

// CloseCode is a WebSocket close status.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

// Conn is the text-frame transport of one session.
type Conn interface {
	// Read blocks for the next client text frame. It returns ErrClosed (or
	// another error) once the connection is gone.
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
	Close(code CloseCode, reason string) error
}

// Resolver validates a stream handshake token.
type Resolver interface {
	ResolveStreamIdentity(ctx context.Context, token string) (*store.Identity, error)
}

// Transcripts is the part of the transcript manager a session uses.
type Transcripts interface {
	EnsureGreeting(ctx context.Context, identityID string) (*store.Transcript, error)
	Append(ctx context.Context, identityID string, msgs ...store.Message) (*store.Transcript, error)
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Accounts    Resolver
	Identities  store.IdentityStore
	Transcripts Transcripts
	Completer   completion.Completer
	Usage       store.UsageStore // optional
	Metrics     *metrics.Metrics // optional

	// CompletionTimeout bounds each completion call; 0 means no bound.
	CompletionTimeout time.Duration

	// OnTransition, when set, observes every state change.
	OnTransition func(identityID string, from, to State)

	Logger *slog.Logger
}

// Orchestrator runs chat sessions. One Orchestrator serves every
// connection; per-connection state lives on the stack of Serve.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger.With("component", "session")}
}

// run is the per-connection state.
type run struct {
	o          *Orchestrator
	conn       Conn
	identityID string
	state      State
	logger     *slog.Logger
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	if r.o.cfg.OnTransition != nil {
		r.o.cfg.OnTransition(r.identityID, prev, next)
	}
}

// Serve runs a session on conn until the connection closes. ctx must be
// cancelled when the connection goes away. token is the raw handshake token.
// The returned error is nil when the client simply disconnected.
func (o *Orchestrator) Serve(ctx context.Context, conn Conn, token string) error {
	r := &run{o: o, conn: conn, state: StateConnecting, logger: o.logger}

	identity, err := o.cfg.Accounts.ResolveStreamIdentity(ctx, token)
	if err != nil {
		o.cfg.Metrics.SessionRejected()
		o.cfg.Metrics.AuthFailure("stream")
		r.logger.Info("rejecting chat session", "error", err)
		_ = conn.Close(ClosePolicyViolation, apperr.DetailOf(err))
		r.to(StateClosed)
		return err
	}

	r.identityID = identity.ID
	r.logger = o.logger.With("identity_id", identity.ID)
	r.to(StateAuthenticated)

	o.cfg.Metrics.SessionOpened()
	defer o.cfg.Metrics.SessionClosed()

	if identity.TranscriptID == "" {
		if _, err := o.cfg.Transcripts.EnsureGreeting(ctx, identity.ID); err != nil {
			r.logger.Error("failed to seed transcript", "error", err)
			_ = conn.Close(CloseInternalError, apperr.DetailOf(err))
			r.to(StateClosed)
			return err
		}
	}

	r.logger.Info("chat session opened")
	err = r.loop(ctx)
	r.to(StateClosed)
	r.logger.Info("chat session closed")
	return err
}

func (r *run) loop(ctx context.Context) error {
	for {
		r.to(StateAwaitingInput)
		text, err := r.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		r.to(StateCompleting)
		identity, err := r.o.cfg.Identities.GetIdentity(ctx, r.identityID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				appErr := apperr.Wrap(apperr.KindIdentityNotFound, err)
				_ = r.conn.Close(ClosePolicyViolation, appErr.Detail)
				return appErr
			}
			if ctx.Err() != nil {
				return nil
			}
			r.writeError(ctx, apperr.Wrap(apperr.KindInternal, err))
			continue
		}

		reply, ok, err := r.complete(ctx, identity, text)
		if !ok {
			return err
		}
		if reply == nil {
			continue
		}

		r.to(StateAppending)
		_, err = r.o.cfg.Transcripts.Append(ctx, r.identityID,
			store.Message{Role: store.MessageRoleUser, Content: text},
			store.Message{Role: store.MessageRoleAI, Content: reply.Content},
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("failed to append turn", "error", err)
			r.writeError(ctx, err)
			continue
		}

		r.recordUsage(ctx, identity.Role, reply.Usage)

		if err := r.conn.Write(ctx, reply.Content); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

// complete runs one completion. It returns ok=false when the session must
// end, and a nil reply when the turn failed but the session continues.
func (r *run) complete(ctx context.Context, identity *store.Identity, text string) (*completion.Reply, bool, error) {
	profile, found := completion.ProfileFor(identity.Role)
	if !found {
		r.writeError(ctx, apperr.New(apperr.KindMalformedInput, fmt.Sprintf("unknown role %q", identity.Role)))
		return nil, true, nil
	}

	// The call outlives a closed connection; its result is then discarded
	callCtx := context.WithoutCancel(ctx)
	if r.o.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, r.o.cfg.CompletionTimeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := r.o.cfg.Completer.Complete(callCtx, profile.Request(text))
	elapsed := time.Since(started)
	role := string(identity.Role)

	if ctx.Err() != nil {
		r.o.cfg.Metrics.ObserveCompletion(role, "discarded", elapsed)
		r.logger.Info("discarding completion for closed session", "elapsed", elapsed)
		return nil, false, nil
	}

	if err != nil {
		r.o.cfg.Metrics.ObserveCompletion(role, "error", elapsed)
		r.logger.Warn("completion failed", "role", role, "elapsed", elapsed, "error", err)
		r.writeError(ctx, apperr.Wrap(apperr.KindCompletionFailure, err))
		return nil, true, nil
	}

	r.o.cfg.Metrics.ObserveCompletion(role, "ok", elapsed)
	return reply, true, nil
}

func (r *run) recordUsage(ctx context.Context, role store.Role, usage completion.Usage) {
	r.o.cfg.Metrics.AddTokens(string(role), usage.PromptTokens, usage.CompletionTokens)
	if r.o.cfg.Usage == nil {
		return
	}
	err := r.o.cfg.Usage.SaveUsage(ctx, &store.CompletionUsage{
		ID:               uuid.New().String(),
		IdentityID:       r.identityID,
		Role:             role,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		r.logger.Warn("failed to record usage", "error", err)
	}
}

// writeError sends the client-safe description of err as a text frame.
func (r *run) writeError(ctx context.Context, err error) {
	if werr := r.conn.Write(ctx, apperr.DetailOf(err)); werr != nil {
		r.logger.Debug("failed to write error frame", "error", werr)
	}
}
