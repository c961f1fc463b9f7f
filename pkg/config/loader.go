package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/armorclaw/beacon/pkg/logger"
)

// Load loads configuration from a file path. An empty path searches
// ConfigPaths; when nothing is found the defaults are used. Environment
// overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		logger.Global().Debug("no configuration file found, using defaults",
			"checked", strings.Join(ConfigPaths(), ", "))
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			logger.Global().Warn("unknown configuration keys ignored",
				"path", path, "keys", fmt.Sprint(undecoded))
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDie loads configuration or exits on error
func LoadOrDie(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// applyEnvOverrides applies BEACON_* environment variables to the configuration
func applyEnvOverrides(cfg *Config) error {
	// Client overrides
	if v := os.Getenv("BEACON_RELEASE"); v != "" {
		cfg.Client.Release = v
	}
	if v := os.Getenv("BEACON_ENVIRONMENT"); v != "" {
		cfg.Client.Environment = v
	}
	if v := os.Getenv("BEACON_SERVER_NAME"); v != "" {
		cfg.Client.ServerName = v
	}

	// Transport overrides
	if v := os.Getenv("BEACON_TRANSPORT"); v != "" {
		var kinds []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, k)
			}
		}
		cfg.Transport.Kinds = kinds
	}
	if v := os.Getenv("BEACON_ASYNC"); v != "" {
		cfg.Transport.Async = v == "true" || v == "1"
	}
	if err := envInt("BEACON_QUEUE_SIZE", &cfg.Transport.QueueSize); err != nil {
		return err
	}

	// Store overrides
	if v := os.Getenv("BEACON_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if err := envInt("BEACON_RETENTION_DAYS", &cfg.Store.RetentionDays); err != nil {
		return err
	}
	if v := os.Getenv("BEACON_RETENTION_SCHEDULE"); v != "" {
		cfg.Store.RetentionSchedule = v
	}

	// HTTP and WebSocket overrides
	if v := os.Getenv("BEACON_HTTP_URL"); v != "" {
		cfg.HTTP.URL = v
	}
	if v := os.Getenv("BEACON_HTTP_AUTH_TOKEN"); v != "" {
		cfg.HTTP.AuthToken = v
	}
	if v := os.Getenv("BEACON_WS_URL"); v != "" {
		cfg.WebSocket.URL = v
	}
	if v := os.Getenv("BEACON_WS_AUTH_TOKEN"); v != "" {
		cfg.WebSocket.AuthToken = v
	}

	// Ingest server overrides
	if v := os.Getenv("BEACON_SERVER_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("BEACON_SERVER_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}

	// Metrics overrides
	if v := os.Getenv("BEACON_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("BEACON_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	// Logging overrides
	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BEACON_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BEACON_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
	if v := os.Getenv("BEACON_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// Save saves the configuration to a file
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Forward slashes keep Windows paths from being read as TOML escapes
	cfgCopy := *cfg
	cfgCopy.Store.Path = filepath.ToSlash(cfg.Store.Path)
	if cfgCopy.Logging.File != "" {
		cfgCopy.Logging.File = filepath.ToSlash(cfgCopy.Logging.File)
	}

	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	// May hold auth tokens
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file
func GenerateExampleConfig(path string) error {
	cfg := DefaultConfig()

	cfg.Client.Release = "myapp@1.0.0"
	cfg.Client.Environment = "production"
	cfg.Client.Tags = map[string]string{"team": "platform"}
	cfg.Transport.Kinds = []string{TransportStore, TransportHTTP}
	cfg.HTTP.URL = "https://events.example.com/api/events"
	cfg.HTTP.AuthToken = "change-me"
	cfg.Logging.Level = "info"

	return Save(cfg, path)
}
