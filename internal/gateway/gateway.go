// ABOUTME: Gateway orchestrator that wires the store, services and HTTP server
// ABOUTME: Owns the HTTP listener lifecycle plus health, readiness and metrics endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/2389/metrosha-gateway/internal/account"
	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/completion"
	"github.com/2389/metrosha-gateway/internal/config"
	"github.com/2389/metrosha-gateway/internal/metrics"
	"github.com/2389/metrosha-gateway/internal/session"
	"github.com/2389/metrosha-gateway/internal/store"
	"github.com/2389/metrosha-gateway/internal/transcript"
)

// Gateway orchestrates the metrosha-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	accounts    *account.Service
	transcripts *transcript.Manager
	sessions    *session.Orchestrator
	metrics     *metrics.Metrics
	handler     http.Handler
	httpServer  *http.Server
	logger      *slog.Logger

	// sessionCtx is canceled on Shutdown to end live chat sessions, which
	// http.Server.Shutdown does not track once hijacked.
	sessionCtx   context.Context
	stopSessions context.CancelFunc
	sessionWG    sync.WaitGroup
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*options)

type options struct {
	store     store.Store
	completer completion.Completer
}

// WithStore makes the gateway use s instead of opening database.dsn.
// The gateway takes ownership and closes s on Shutdown.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithCompleter replaces the completion service client.
func WithCompleter(c completion.Completer) Option {
	return func(o *options) { o.completer = c }
}

// OpenStore opens and migrates the document store selected by database.driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := store.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("initializing postgres store: %w", err)
		}
		return s, nil
	case config.DriverSQLite, "":
		s, err := store.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// New creates a Gateway from cfg. The store is opened and migrated here; the
// HTTP listener is only bound by Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.Auth.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("creating password hasher: %w", err)
	}

	completer := o.completer
	if completer == nil {
		completer, err = completion.NewClient(completion.ClientConfig{
			Credentials:        cfg.Completion.Credentials,
			Scope:              cfg.Completion.Scope,
			AuthURL:            cfg.Completion.AuthURL,
			BaseURL:            cfg.Completion.BaseURL,
			Model:              cfg.Completion.Model,
			InsecureSkipVerify: cfg.Completion.InsecureSkipVerify,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating completion client: %w", err)
		}
	}
	if cfg.Completion.InsecureSkipVerify {
		logger.Warn("completion TLS verification disabled")
	}

	s := o.store
	if s == nil {
		s, err = OpenStore(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	transcripts := transcript.New(transcript.Config{
		Store:  s,
		Logger: logger,
	})

	accounts := account.New(account.Config{
		Store:    s,
		Greeter:  transcripts,
		Tokens:   tokens,
		Hasher:   hasher,
		TokenTTL: cfg.Auth.TokenTTL,
		Logger:   logger,
	})

	sessions := session.New(session.Config{
		Accounts:          accounts,
		Identities:        s,
		Transcripts:       transcripts,
		Completer:         completer,
		Usage:             s,
		Metrics:           m,
		CompletionTimeout: cfg.Completion.Timeout,
		Logger:            logger,
	})

	gw := &Gateway{
		config:      cfg,
		store:       s,
		accounts:    accounts,
		transcripts: transcripts,
		sessions:    sessions,
		metrics:     m,
		logger:      logger.With("component", "gateway"),
	}
	gw.sessionCtx, gw.stopSessions = context.WithCancel(context.Background())

	gw.handler = gw.routes()
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// routes builds the HTTP mux.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	requireAuth := auth.HTTPAuthMiddleware(g.accounts, g.logger,
		auth.WithRejectHook(func() { g.metrics.AuthFailure("header") }))

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}

	mux.HandleFunc("GET /api/system/ping", g.handlePing)

	mux.HandleFunc("POST /api/user/create", g.handleRegister)
	mux.HandleFunc("POST /api/user/login", g.handleLogin)
	mux.Handle("GET /api/user/{$}", requireAuth(http.HandlerFunc(g.handleGetIdentity)))
	mux.Handle("PATCH /api/user/{$}", requireAuth(http.HandlerFunc(g.handleUpdateIdentity)))
	mux.Handle("DELETE /api/user/{$}", requireAuth(http.HandlerFunc(g.handleDeleteIdentity)))

	mux.HandleFunc("GET /api/ai/{$}", g.handleChat)
	mux.Handle("GET /api/ai/history", requireAuth(http.HandlerFunc(g.handleGetHistory)))
	mux.Handle("DELETE /api/ai/history", requireAuth(http.HandlerFunc(g.handleClearHistory)))
	mux.Handle("GET /api/ai/usage", requireAuth(http.HandlerFunc(g.handleGetUsage)))

	return g.logRequests(corsMiddleware(mux))
}

// Run binds the HTTP listener and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.store.Close()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "environment", g.config.Environment)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.stopSessions()
	errs = appendCloseError(errs, "chat sessions", g.waitSessions(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// waitSessions blocks until every chat session returned or ctx is done.
func (g *Gateway) waitSessions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.sessionWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
