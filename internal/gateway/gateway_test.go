// ABOUTME: Tests for Gateway wiring, lifecycle, health endpoints, metrics and CORS
// ABOUTME: Shared helpers build a gateway over MockStore with a scripted completer

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/metrosha-gateway/internal/completion"
	"github.com/2389/metrosha-gateway/internal/config"
	"github.com/2389/metrosha-gateway/internal/store"
)

const testSecret = "gateway-test-secret-of-at-least-32-bytes"

// testConfig creates a minimal valid config for tests.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: config.EnvDev,
		Server:      config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database:    config.DatabaseConfig{Driver: config.DriverSQLite, DSN: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:  testSecret,
			Algorithm:  "HS256",
			TokenTTL:   time.Hour,
			BcryptCost: 4,
		},
		Completion: config.CompletionConfig{Credentials: "test-credentials"},
		Logging:    config.LoggingConfig{Level: "debug", Format: "text"},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoCompleter answers every request with the last user message.
var echoCompleter = completion.CompleterFunc(func(_ context.Context, req completion.Request) (*completion.Reply, error) {
	last := req.Messages[len(req.Messages)-1]
	return &completion.Reply{
		Content: "echo: " + last.Content,
		Usage:   completion.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
})

type testGateway struct {
	*Gateway
	store *store.MockStore
}

// newTestGateway builds a gateway over a fresh MockStore.
func newTestGateway(t *testing.T, completer completion.Completer) *testGateway {
	t.Helper()
	if completer == nil {
		completer = echoCompleter
	}
	ms := store.NewMockStore()
	gw, err := New(context.Background(), testConfig(t), testLogger(), WithStore(ms), WithCompleter(completer))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return &testGateway{Gateway: gw, store: ms}
}

func (tg *testGateway) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	tg.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGatewayNew(t *testing.T) {
	tg := newTestGateway(t, nil)

	assert.NotNil(t, tg.accounts)
	assert.NotNil(t, tg.transcripts)
	assert.NotNil(t, tg.sessions)
	assert.NotNil(t, tg.metrics)
	assert.Equal(t, "127.0.0.1:0", tg.httpServer.Addr)
}

func TestGatewayNew_RejectsAsymmetricAlgorithm(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Algorithm = "RS256"

	_, err := New(context.Background(), cfg, testLogger(), WithStore(store.NewMockStore()), WithCompleter(echoCompleter))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating token service")
}

func TestGatewayNew_BuildsCompletionClient(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(context.Background(), cfg, testLogger(), WithStore(store.NewMockStore()))
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	cfg.Completion.Credentials = ""
	_, err = New(context.Background(), cfg, testLogger(), WithStore(store.NewMockStore()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating completion client")
}

func TestGatewayNew_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	gw, err := New(context.Background(), cfg, testLogger(), WithStore(store.NewMockStore()), WithCompleter(echoCompleter))
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOpenStore(t *testing.T) {
	t.Run("sqlite file", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "nested", "gateway.db")
		s, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, DSN: dsn})
		require.NoError(t, err)
		defer s.Close()
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "mongodb", DSN: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown database driver")
	})
}

func TestHealthEndpoints(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = tg.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())

	tg.store.PingErr = errors.New("database is gone")
	rec = tg.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	tg := newTestGateway(t, nil)

	tg.do(t, httptest.NewRequest(http.MethodGet, "/api/system/ping", nil))

	rec := tg.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "metrosha_http_requests_total")
	assert.Contains(t, body, `route="GET /api/system/ping"`)
}

func TestCORS(t *testing.T) {
	tg := newTestGateway(t, nil)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/user/create", nil)
		req.Header.Set("Origin", "https://metrosha.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")

		rec := tg.do(t, req)
		assert.Less(t, rec.Code, 300)
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("actual request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/system/ping", nil)
		req.Header.Set("Origin", "https://metrosha.example")

		rec := tg.do(t, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestRequestID(t *testing.T) {
	tg := newTestGateway(t, nil)

	rec := tg.do(t, httptest.NewRequest(http.MethodGet, "/api/system/ping", nil))
	generated := rec.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/api/system/ping", nil)
	req.Header.Set("X-Request-ID", "client-chosen")
	rec = tg.do(t, req)
	assert.Equal(t, "client-chosen", rec.Header().Get("X-Request-ID"))
}

func TestGatewayServe_ShutsDownOnCancel(t *testing.T) {
	tg := newTestGateway(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tg.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/health", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	_, _ = sr.Write([]byte("body"))
	sr.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, sr.status)
	assert.Same(t, rec, sr.Unwrap().(*httptest.ResponseRecorder))

	_, _, err := sr.Hijack()
	assert.Error(t, err)
}

func TestTruncateReason(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short"))

	long := strings.Repeat("я", 100) // 200 bytes
	got := truncateReason(long)
	assert.LessOrEqual(t, len(got), maxCloseReason)
	assert.True(t, strings.HasPrefix(long, got))
	assert.Equal(t, 0, len(got)%2, "must not split a two-byte rune")
}
