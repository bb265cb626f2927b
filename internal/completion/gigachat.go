// ABOUTME: GigaChat-compatible completion client over HTTP
// ABOUTME: Exchanges client credentials for a cached access token, then calls /chat/completions

package completion

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the public GigaChat API.
const (
	DefaultAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultBaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultScope   = "GIGACHAT_API_PERS"
	DefaultModel   = "GigaChat"
)

// tokenRefreshMargin is how long before expiry a cached token is replaced.
const tokenRefreshMargin = time.Minute

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion service: HTTP %d: %s", e.StatusCode, e.Body)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Credentials is the base64 "client_id:client_secret" authorization key.
	Credentials        string
	Scope              string
	AuthURL            string
	BaseURL            string
	Model              string
	InsecureSkipVerify bool
	HTTPClient         *http.Client // overrides InsecureSkipVerify when set
	Logger             *slog.Logger
	Now                func() time.Time
}

// Client talks to a GigaChat-compatible completion service.
// It is safe for concurrent use; the access token is shared.
type Client struct {
	credentials string
	scope       string
	authURL     string
	baseURL     string
	model       string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient creates a Client, filling unset fields with the public defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Credentials == "" {
		return nil, fmt.Errorf("completion credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		httpClient = &http.Client{Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		credentials: cfg.Credentials,
		scope:       orDefault(cfg.Scope, DefaultScope),
		authURL:     orDefault(cfg.AuthURL, DefaultAuthURL),
		baseURL:     strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		model:       orDefault(cfg.Model, DefaultModel),
		httpClient:  httpClient,
		logger:      logger.With("component", "completion"),
		now:         now,
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

// Complete sends req and returns the first choice.
// A 401 drops the cached token and retries once with a fresh one.
func (c *Client) Complete(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	resp, err := c.postChat(ctx, body)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
		resp, err = c.postChat(ctx, body)
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyReply
	}

	c.logger.Debug("completion finished",
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return &Reply{Content: resp.Choices[0].Message.Content, Usage: resp.Usage}, nil
}

func (c *Client) postChat(ctx context.Context, body []byte) (*chatResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	var out chatResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// accessToken returns the cached token, exchanging credentials for a new
// one when it is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	form := url.Values{"scope": {c.scope}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+c.credentials)
	httpReq.Header.Set("RqUID", uuid.New().String())

	var out tokenResponse
	if err := c.do(httpReq, &out); err != nil {
		return "", fmt.Errorf("exchanging credentials: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("exchanging credentials: empty access token")
	}

	c.token = out.AccessToken
	c.expiresAt = time.UnixMilli(out.ExpiresAt)
	c.logger.Debug("refreshed access token", "expires_at", c.expiresAt)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
