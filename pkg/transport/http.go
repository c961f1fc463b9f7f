package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/armorclaw/beacon/pkg/protocol"
)

const defaultHTTPTimeout = 10 * time.Second

// AuthHeader carries the shared token on HTTP requests and WebSocket handshakes
const AuthHeader = "X-Beacon-Auth"

// HTTPOption configures an HTTP transport
type HTTPOption func(*HTTP)

// WithAuthToken sets the token sent in the X-Beacon-Auth header
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTP) { h.token = token }
}

// WithHeaders sets custom HTTP headers sent with every POST
func WithHeaders(headers map[string]string) HTTPOption {
	return func(h *HTTP) { h.headers = headers }
}

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) { h.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		if c != nil {
			h.client = c
		}
	}
}

// HTTP POSTs each event as a JSON document to an ingestion endpoint
type HTTP struct {
	client  *http.Client
	url     string
	token   string
	headers map[string]string

	mu     sync.RWMutex
	closed bool
}

// NewHTTP creates an HTTP transport targeting url
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		url:    url,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Namer
func (h *HTTP) Name() string { return "http" }

// Send implements Transport. Any non-2xx status is an error.
func (h *HTTP) Send(ctx context.Context, ev *protocol.Event) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set(AuthHeader, h.token)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ingestion endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Close implements Transport
func (h *HTTP) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.client.CloseIdleConnections()
	return nil
}
