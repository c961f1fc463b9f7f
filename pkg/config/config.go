// Package config provides configuration loading and management for beacon.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/armorclaw/beacon/pkg/logger"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Transport kinds
const (
	TransportStore     = "store"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportNoop      = "noop"
)

// Config holds the complete beacon configuration
type Config struct {
	Client    ClientConfig    `toml:"client"`
	Transport TransportConfig `toml:"transport"`
	Store     StoreConfig     `toml:"store"`
	HTTP      HTTPConfig      `toml:"http"`
	WebSocket WebSocketConfig `toml:"websocket"`
	Server    ServerConfig    `toml:"server"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ClientConfig holds the values stamped on every event
type ClientConfig struct {
	Release     string            `toml:"release"`
	Environment string            `toml:"environment"`
	ServerName  string            `toml:"server_name"`
	Tags        map[string]string `toml:"tags"`
}

// TransportConfig selects where events go
type TransportConfig struct {
	// Kinds lists the transports to fan out to: store, http, websocket, noop
	Kinds []string `toml:"kinds"`

	// Async queues events and delivers them from a background goroutine
	Async bool `toml:"async"`

	// QueueSize bounds the async queue
	QueueSize int `toml:"queue_size"`

	// DrainTimeout bounds how long Close waits for the queue, in seconds
	DrainTimeout int `toml:"drain_timeout"`
}

// StoreConfig configures the local SQLite event store
type StoreConfig struct {
	Path              string `toml:"path"`
	RetentionDays     int    `toml:"retention_days"`
	RetentionSchedule string `toml:"retention_schedule"`
}

// HTTPConfig configures the HTTP transport
type HTTPConfig struct {
	URL       string            `toml:"url"`
	AuthToken string            `toml:"auth_token"`
	Timeout   int               `toml:"timeout"` // seconds
	Headers   map[string]string `toml:"headers"`
}

// WebSocketConfig configures the WebSocket transport
type WebSocketConfig struct {
	URL       string `toml:"url"`
	AuthToken string `toml:"auth_token"`
	WriteWait int    `toml:"write_wait"` // seconds
}

// ServerConfig configures the ingest server run by 'beacon serve'
type ServerConfig struct {
	Listen       string `toml:"listen"`
	AuthToken    string `toml:"auth_token"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
	File   string `toml:"file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Client: ClientConfig{
			Environment: "production",
			Tags:        map[string]string{},
		},
		Transport: TransportConfig{
			Kinds:        []string{TransportStore},
			Async:        true,
			QueueSize:    100,
			DrainTimeout: 5,
		},
		Store: StoreConfig{
			Path:              filepath.Join(homeDir, ".beacon", "events.db"),
			RetentionDays:     30,
			RetentionSchedule: "0 3 * * *",
		},
		HTTP: HTTPConfig{
			Timeout: 30,
			Headers: map[string]string{},
		},
		WebSocket: WebSocketConfig{
			WriteWait: 10,
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:8790",
			MaxBodyBytes: 1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// ConfigPaths returns the list of default configuration file paths to check
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".beacon", "config.toml"),
		filepath.Join("/etc", "beacon", "config.toml"),
		"./beacon.toml",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Transport.Kinds) == 0 {
		return fmt.Errorf("%w: transport.kinds must name at least one transport", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Transport.Kinds))
	for _, kind := range c.Transport.Kinds {
		if seen[kind] {
			return fmt.Errorf("%w: transport %q listed twice", ErrInvalidConfig, kind)
		}
		seen[kind] = true

		switch kind {
		case TransportStore:
			if c.Store.Path == "" {
				return fmt.Errorf("%w: store.path is required for the store transport", ErrInvalidConfig)
			}
		case TransportHTTP:
			if err := validateURL(c.HTTP.URL, "http", "https"); err != nil {
				return fmt.Errorf("%w: http.url: %w", ErrInvalidConfig, err)
			}
			if c.HTTP.Timeout < 1 {
				return fmt.Errorf("%w: http.timeout must be at least 1 second", ErrInvalidConfig)
			}
		case TransportWebSocket:
			if err := validateURL(c.WebSocket.URL, "ws", "wss"); err != nil {
				return fmt.Errorf("%w: websocket.url: %w", ErrInvalidConfig, err)
			}
			if c.WebSocket.WriteWait < 1 {
				return fmt.Errorf("%w: websocket.write_wait must be at least 1 second", ErrInvalidConfig)
			}
		case TransportNoop:
		default:
			return fmt.Errorf("%w: unknown transport %q (want store, http, websocket or noop)", ErrInvalidConfig, kind)
		}
	}

	if c.Transport.Async {
		if c.Transport.QueueSize < 1 {
			return fmt.Errorf("%w: transport.queue_size must be at least 1", ErrInvalidConfig)
		}
		if c.Transport.DrainTimeout < 0 {
			return fmt.Errorf("%w: transport.drain_timeout cannot be negative", ErrInvalidConfig)
		}
	}

	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("%w: store.retention_days cannot be negative", ErrInvalidConfig)
	}
	if c.Store.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(c.Store.RetentionSchedule); err != nil {
			return fmt.Errorf("%w: store.retention_schedule: %w", ErrInvalidConfig, err)
		}
	}

	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server.max_body_bytes cannot be negative", ErrInvalidConfig)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required when metrics are enabled", ErrInvalidConfig)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: logging.level must be one of: debug, info, warn, error", ErrInvalidConfig)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("%w: logging.format must be one of: json, text", ErrInvalidConfig)
	}

	validOutputs := map[string]bool{
		"stdout":  true,
		"stderr":  true,
		"discard": true,
		"file":    true,
	}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("%w: logging.output must be one of: stdout, stderr, discard, file", ErrInvalidConfig)
	}

	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("%w: logging.file is required when logging.output is 'file'", ErrInvalidConfig)
	}

	return nil
}

func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host in %q", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %v, got %q", schemes, u.Scheme)
}

// HasTransport reports whether kind is configured
func (c *Config) HasTransport(kind string) bool {
	for _, k := range c.Transport.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ToLoggerConfig converts the logging section for the logger package
func (c *Config) ToLoggerConfig() logger.Config {
	output := c.Logging.Output
	if output == "file" {
		output = c.Logging.File
	}
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: output,
	}
}

// HTTPTimeout returns the HTTP transport timeout
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeout) * time.Second
}

// WebSocketWriteWait returns the WebSocket write deadline
func (c *Config) WebSocketWriteWait() time.Duration {
	return time.Duration(c.WebSocket.WriteWait) * time.Second
}

// DrainTimeout returns how long closing waits for queued events
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Transport.DrainTimeout) * time.Second
}
