package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/armorclaw/beacon/pkg/protocol"
)

const defaultWriteWait = 10 * time.Second

// WebSocket streams events as JSON text frames over a single connection.
// The connection is dialed on the first send and again after a failed write.
type WebSocket struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	writeWait time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// WebSocketOption configures a WebSocket transport
type WebSocketOption func(*WebSocket)

// WithWebSocketAuthToken sends token in the X-Beacon-Auth handshake header
func WithWebSocketAuthToken(token string) WebSocketOption {
	return func(w *WebSocket) {
		if token != "" {
			w.header.Set(AuthHeader, token)
		}
	}
}

// WithWriteWait sets the per frame write deadline. Default: 10s.
func WithWriteWait(d time.Duration) WebSocketOption {
	return func(w *WebSocket) { w.writeWait = d }
}

// NewWebSocket creates a transport that streams to url (ws:// or wss://)
func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	w := &WebSocket{
		url:       url,
		header:    http.Header{},
		dialer:    websocket.DefaultDialer,
		writeWait: defaultWriteWait,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Namer
func (w *WebSocket) Name() string { return "websocket" }

// Send implements Transport
func (w *WebSocket) Send(ctx context.Context, ev *protocol.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if w.conn == nil {
		conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", w.url, err)
		}
		w.conn = conn
	}

	w.conn.SetWriteDeadline(time.Now().Add(w.writeWait))
	if err := w.conn.WriteJSON(ev); err != nil {
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}
