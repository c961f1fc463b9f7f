package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorclaw/beacon/internal/store"
	"github.com/armorclaw/beacon/pkg/event"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/transport"
)

type memSink struct {
	mu     sync.Mutex
	events []*protocol.Event
	err    error
}

func (m *memSink) Send(_ context.Context, ev *protocol.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestServer(t *testing.T, cfg Config, sink Sink) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(cfg, sink, logger.NewWithWriter(io.Discard, logger.Config{}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func testEvent() *protocol.Event {
	ev := event.FromError(errors.New("disk full"))
	ev.EventID = uuid.New()
	ev.Timestamp = time.Now().UTC()
	return &ev
}

func TestServer_HTTPTransport(t *testing.T) {
	sink := &memSink{}
	srv, ts := newTestServer(t, Config{AuthToken: "secret"}, sink)

	tr := transport.NewHTTP(ts.URL+"/api/events", transport.WithAuthToken("secret"))
	defer tr.Close()

	ev := testEvent()
	require.NoError(t, tr.Send(context.Background(), ev))

	require.Equal(t, 1, sink.count())
	got := sink.events[0]
	assert.Equal(t, ev.EventID, got.EventID)
	require.Len(t, got.Exception, 1)
	assert.Equal(t, "disk full", *got.Exception[0].Value)
	assert.Equal(t, int64(1), srv.Received())
}

func TestServer_HTTPRejectsBadToken(t *testing.T) {
	sink := &memSink{}
	_, ts := newTestServer(t, Config{AuthToken: "secret"}, sink)

	tr := transport.NewHTTP(ts.URL+"/api/events", transport.WithAuthToken("wrong"))
	err := tr.Send(context.Background(), testEvent())
	assert.Error(t, err)
	assert.Equal(t, 0, sink.count())
}

func TestServer_HTTPValidation(t *testing.T) {
	sink := &memSink{}
	_, ts := newTestServer(t, Config{MaxBodyBytes: 64}, sink)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing id", http.MethodPost, `{"level":"error"}`, http.StatusBadRequest},
		{"too large", http.MethodPost, `{"message":"` + strings.Repeat("x", 100) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+"/api/events", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, sink.count())
}

// brokenBody fails mid-read like a client that disconnects
type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestServer_HTTPReadFailure(t *testing.T) {
	sink := &memSink{}
	srv := NewServer(Config{MaxBodyBytes: 64}, sink, logger.NewWithWriter(io.Discard, logger.Config{}))

	req := httptest.NewRequest(http.MethodPost, "/api/events", brokenBody{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, sink.count())
}

func TestServer_HTTPSinkFailure(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	_, ts := newTestServer(t, Config{}, sink)

	tr := transport.NewHTTP(ts.URL + "/api/events")
	assert.Error(t, tr.Send(context.Background(), testEvent()))
}

func TestServer_WebSocketTransport(t *testing.T) {
	sink := &memSink{}
	_, ts := newTestServer(t, Config{AuthToken: "ws-secret"}, sink)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	tr := transport.NewWebSocket(wsURL, transport.WithWebSocketAuthToken("ws-secret"))
	defer tr.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Send(context.Background(), testEvent()))
	}

	require.Eventually(t, func() bool { return sink.count() == 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketRejectsBadToken(t *testing.T) {
	sink := &memSink{}
	_, ts := newTestServer(t, Config{AuthToken: "ws-secret"}, sink)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	tr := transport.NewWebSocket(wsURL)
	defer tr.Close()

	assert.Error(t, tr.Send(context.Background(), testEvent()))
}

func TestServer_IntoStore(t *testing.T) {
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "events.db")})
	require.NoError(t, err)
	defer st.Close()

	_, ts := newTestServer(t, Config{}, st)

	ev := testEvent()
	tr := transport.NewHTTP(ts.URL + "/api/events")
	require.NoError(t, tr.Send(context.Background(), ev))

	stored, err := st.Get(context.Background(), ev.EventID)
	require.NoError(t, err)
	assert.Equal(t, "disk full", stored.Message)
	assert.Equal(t, protocol.LevelError, stored.Level)
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, Config{}, &memSink{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["received"])
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, &memSink{}, logger.NewWithWriter(io.Discard, logger.Config{}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Shutdown before or after ListenAndServe both make Start return
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
