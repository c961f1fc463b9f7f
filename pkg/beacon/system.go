package beacon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/armorclaw/beacon/internal/metrics"
	"github.com/armorclaw/beacon/internal/store"
	"github.com/armorclaw/beacon/pkg/client"
	"github.com/armorclaw/beacon/pkg/config"
	"github.com/armorclaw/beacon/pkg/hub"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

// System owns everything Init wires together
type System struct {
	cfg       *config.Config
	log       *logger.Logger
	client    *client.Client
	transport transport.Transport
	store     *store.Store
	hub       *hub.Hub

	metricsServer *http.Server
}

// Options tweaks Init
type Options struct {
	// Hub receives the client. Defaults to hub.Current().
	Hub *hub.Hub

	// Registerer receives the beacon collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Gatherer backs the metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// BeforeSend is passed to the client
	BeforeSend func(*protocol.Event) *protocol.Event
}

// Init builds the logger, metrics, transport chain and client described by
// cfg and binds the client to the hub
func Init(cfg *config.Config) (*System, error) {
	return InitWithOptions(cfg, Options{})
}

// InitWithOptions is Init with explicit collaborators
func InitWithOptions(cfg *config.Config, opts Options) (*System, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Hub == nil {
		opts.Hub = hub.Current()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	log, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(log)

	if err := metrics.Register(opts.Registerer); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	s := &System{cfg: cfg, log: log.WithComponent("beacon"), hub: opts.Hub}

	s.transport, err = s.buildTransport()
	if err != nil {
		return nil, err
	}

	s.client, err = client.New(client.Options{
		Release:     cfg.Client.Release,
		Environment: cfg.Client.Environment,
		ServerName:  cfg.Client.ServerName,
		Tags:        cfg.Client.Tags,
		Transport:   s.transport,
		BeforeSend:  opts.BeforeSend,
		Logger:      log,
		Metrics:     metrics.NewRecorder(transport.NameOf(s.transport)),
	})
	if err != nil {
		s.transport.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		s.startMetricsServer(opts.Gatherer)
	}

	s.hub.BindClient(s.client)

	s.log.Info("beacon initialized",
		"transport", transport.NameOf(s.transport),
		"release", cfg.Client.Release,
		"environment", cfg.Client.Environment,
	)
	return s, nil
}

// buildTransport creates one transport per configured kind, fans out when
// more than one is configured and wraps the result in an async queue
func (s *System) buildTransport() (transport.Transport, error) {
	cfg := s.cfg
	var built []transport.Transport

	closeBuilt := func() {
		for _, t := range built {
			t.Close()
		}
	}

	for _, kind := range cfg.Transport.Kinds {
		switch kind {
		case config.TransportStore:
			st, err := store.Open(store.Config{
				Path:          cfg.Store.Path,
				RetentionDays: cfg.Store.RetentionDays,
			})
			if err != nil {
				closeBuilt()
				return nil, fmt.Errorf("failed to open event store: %w", err)
			}
			if err := st.StartRetention(cfg.Store.RetentionSchedule, s.log); err != nil {
				st.Close()
				closeBuilt()
				return nil, err
			}
			s.store = st
			built = append(built, st)

		case config.TransportHTTP:
			httpOpts := []transport.HTTPOption{
				transport.WithTimeout(cfg.HTTPTimeout()),
				transport.WithHeaders(cfg.HTTP.Headers),
			}
			if cfg.HTTP.AuthToken != "" {
				httpOpts = append(httpOpts, transport.WithAuthToken(cfg.HTTP.AuthToken))
			}
			built = append(built, transport.NewHTTP(cfg.HTTP.URL, httpOpts...))

		case config.TransportWebSocket:
			wsOpts := []transport.WebSocketOption{transport.WithWriteWait(cfg.WebSocketWriteWait())}
			if cfg.WebSocket.AuthToken != "" {
				wsOpts = append(wsOpts, transport.WithWebSocketAuthToken(cfg.WebSocket.AuthToken))
			}
			built = append(built, transport.NewWebSocket(cfg.WebSocket.URL, wsOpts...))

		case config.TransportNoop:
			built = append(built, transport.Noop{})

		default:
			closeBuilt()
			return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, kind)
		}
	}

	var t transport.Transport
	if len(built) == 1 {
		t = built[0]
	} else {
		t = transport.NewMulti(built...)
	}

	if cfg.Transport.Async {
		t = transport.NewAsync(t,
			transport.WithQueueSize(cfg.Transport.QueueSize),
			transport.WithDrainTimeout(cfg.DrainTimeout()),
			transport.WithRecorder(metrics.NewRecorder(transport.NameOf(t))),
		)
	}
	return t, nil
}

func (s *System) startMetricsServer(g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s.metricsServer = &http.Server{
		Addr:              s.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := s.metricsServer
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorEvent(context.Background(), "metrics server failed", err)
		}
	}()
	s.log.Info("metrics server listening", "addr", s.cfg.Metrics.Listen)
}

// Config returns the configuration the system was built from
func (s *System) Config() *config.Config { return s.cfg }

// Client returns the bound client
func (s *System) Client() *client.Client { return s.client }

// Store returns the event store, or nil when the store transport is not
// configured
func (s *System) Store() *store.Store { return s.store }

// Flush waits until queued events are delivered or ctx is done
func (s *System) Flush(ctx context.Context) error {
	return s.client.Flush(ctx)
}

// Close unbinds the client, drains queued events and releases every
// transport
func (s *System) Close() error {
	if s.hub.Client() == hub.Client(s.client) {
		s.hub.BindClient(nil)
	}

	var errs []error
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
		cancel()
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("beacon stopped")
	return errors.Join(errs...)
}
