// Package ingest receives events from the HTTP and WebSocket transports and
// hands them to a sink, usually the local event store.
package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/armorclaw/beacon/internal/metrics"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/transport"
)

const (
	defaultMaxBodyBytes = 1 << 20

	sourceHTTP      = "http"
	sourceWebSocket = "websocket"
)

// Sink accepts received events
type Sink interface {
	Send(ctx context.Context, ev *protocol.Event) error
}

// Config holds configuration for the ingest server
type Config struct {
	Addr         string
	AuthToken    string // empty disables authentication
	MaxBodyBytes int64
}

// Server receives events over HTTP and WebSocket
type Server struct {
	config     Config
	sink       Sink
	log        *logger.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader

	received atomic.Int64
	started  time.Time
}

// NewServer creates an ingest server writing to sink
func NewServer(cfg Config, sink Sink, log *logger.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if log == nil {
		log = logger.Global()
	}

	s := &Server{
		config: cfg,
		sink:   sink,
		log:    log.WithComponent("ingest"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are SDKs, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routes served by the server
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/events", s.handleEvent)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	return r
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.log.Info("ingest server listening", "addr", s.config.Addr, "auth", s.config.AuthToken != "")

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingest server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping ingest server")
	return s.httpServer.Shutdown(ctx)
}

// Received returns the number of events accepted since start
func (s *Server) Received() int64 {
	return s.received.Load()
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.AuthToken == "" {
		return true
	}
	got := r.Header.Get(transport.AuthHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.config.AuthToken)) == 1
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		metrics.RecordIngested(sourceHTTP, metrics.ResultRejected)
		s.writeError(w, http.StatusUnauthorized, "invalid auth token")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		metrics.RecordIngested(sourceHTTP, metrics.ResultRejected)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	ev, err := decodeEvent(body)
	if err != nil {
		metrics.RecordIngested(sourceHTTP, metrics.ResultRejected)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.accept(r.Context(), ev, sourceHTTP); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id": protocol.EventIDString(ev.EventID),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		metrics.RecordIngested(sourceWebSocket, metrics.ResultRejected)
		s.writeError(w, http.StatusUnauthorized, "invalid auth token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.config.MaxBodyBytes)
	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("websocket read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		ev, err := decodeEvent(message)
		if err != nil {
			metrics.RecordIngested(sourceWebSocket, metrics.ResultRejected)
			s.log.Warn("dropping malformed websocket event", "remote", r.RemoteAddr, "error", err)
			continue
		}
		// failures are logged by accept; the connection stays open
		_ = s.accept(r.Context(), ev, sourceWebSocket)
	}
}

func (s *Server) accept(ctx context.Context, ev *protocol.Event, source string) error {
	if err := s.sink.Send(ctx, ev); err != nil {
		metrics.RecordIngested(source, metrics.ResultFailed)
		s.log.ErrorEvent(ctx, "failed to store received event", err,
			logger.EventIDAttr(ev.EventID))
		return err
	}
	s.received.Add(1)
	metrics.RecordIngested(source, metrics.ResultAccepted)
	return nil
}

func decodeEvent(data []byte) (*protocol.Event, error) {
	var ev protocol.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if ev.EventID == uuid.Nil {
		return nil, errors.New("event_id is required")
	}
	return &ev, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"received":  s.Received(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
