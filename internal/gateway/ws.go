// ABOUTME: WebSocket chat endpoint adapting coder/websocket to session.Conn
// ABOUTME: A reader goroutine feeds frames and cancels the session context on disconnect

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/coder/websocket"

	"github.com/2389/metrosha-gateway/internal/auth"
	"github.com/2389/metrosha-gateway/internal/session"
)

// maxFrameBytes caps a single client text frame.
const maxFrameBytes = 64 << 10

// maxCloseReason is the longest close reason a control frame can carry.
const maxCloseReason = 123

// wsConn adapts a *websocket.Conn to session.Conn.
type wsConn struct {
	c      *websocket.Conn
	frames chan string

	// readDone is closed when the reader goroutine exits; readErr is set before.
	readDone chan struct{}
	readErr  error

	closeOnce sync.Once
	closed    chan struct{}
	cancel    context.CancelFunc
}

// newWSConn starts the reader goroutine. The returned context is canceled
// once the peer goes away or the connection is closed locally.
func newWSConn(parent context.Context, c *websocket.Conn) (*wsConn, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	wc := &wsConn{
		c:        c,
		frames:   make(chan string, 8),
		readDone: make(chan struct{}),
		closed:   make(chan struct{}),
		cancel:   cancel,
	}
	go wc.readLoop()
	return wc, ctx
}

// readLoop reads until the connection fails. It uses its own context so a
// canceled session does not tear the socket down before a close frame is sent.
func (wc *wsConn) readLoop() {
	defer close(wc.readDone)
	defer wc.cancel()

	for {
		_, data, err := wc.c.Read(context.Background())
		if err != nil {
			wc.readErr = err
			return
		}
		select {
		case wc.frames <- string(data):
		case <-wc.closed:
			return
		}
	}
}

func (wc *wsConn) Read(ctx context.Context) (string, error) {
	select {
	case text := <-wc.frames:
		return text, nil
	case <-wc.readDone:
		// Frames read before the peer closed are still delivered
		select {
		case text := <-wc.frames:
			return text, nil
		default:
		}
		return "", fmt.Errorf("%w: %v", session.ErrClosed, wc.readErr)
	case <-wc.closed:
		return "", session.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (wc *wsConn) Write(ctx context.Context, text string) error {
	if err := wc.c.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("writing text frame: %w", err)
	}
	return nil
}

func (wc *wsConn) Close(code session.CloseCode, reason string) error {
	wc.stop()
	return wc.c.Close(websocket.StatusCode(code), truncateReason(reason))
}

// stop releases the reader and cancels the session context.
func (wc *wsConn) stop() {
	wc.closeOnce.Do(func() {
		close(wc.closed)
		wc.cancel()
	})
}

// truncateReason shortens reason to fit a close frame without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// handleChat handles GET /api/ai/. The handshake token comes from the
// Authorization query parameter; it is checked after the upgrade so a bad
// token is reported with a policy-violation close frame.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	token := auth.StreamToken(r)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c.SetReadLimit(maxFrameBytes)
	defer func() { _ = c.CloseNow() }()

	g.sessionWG.Add(1)
	defer g.sessionWG.Done()

	parent, cancel := context.WithCancel(r.Context())
	defer cancel()
	stopOnShutdown := context.AfterFunc(g.sessionCtx, cancel)
	defer stopOnShutdown()

	wc, ctx := newWSConn(parent, c)
	defer wc.stop()

	err = g.sessions.Serve(ctx, wc, token)
	switch {
	case err != nil:
		g.logger.Debug("chat session ended with error", "error", err)
	case g.sessionCtx.Err() != nil:
		_ = wc.Close(session.CloseGoingAway, "server shutting down")
	default:
		_ = wc.Close(session.CloseNormal, "")
	}
}
