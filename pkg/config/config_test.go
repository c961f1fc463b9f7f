package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if len(cfg.Transport.Kinds) != 1 || cfg.Transport.Kinds[0] != TransportStore {
		t.Errorf("Transport.Kinds = %v, want [store]", cfg.Transport.Kinds)
	}
	if !cfg.Transport.Async {
		t.Error("Async should default to true")
	}
	if cfg.Transport.QueueSize != 100 {
		t.Errorf("QueueSize should be 100, got %d", cfg.Transport.QueueSize)
	}
	if cfg.Store.RetentionDays != 30 {
		t.Errorf("RetentionDays should be 30, got %d", cfg.Store.RetentionDays)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join(".beacon", "events.db")) {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should default to disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"no transports", func(c *Config) { c.Transport.Kinds = nil }, true},
		{"unknown transport", func(c *Config) { c.Transport.Kinds = []string{"kafka"} }, true},
		{"duplicate transport", func(c *Config) { c.Transport.Kinds = []string{"store", "store"} }, true},
		{"store without path", func(c *Config) { c.Store.Path = "" }, true},
		{"noop without store path", func(c *Config) {
			c.Transport.Kinds = []string{TransportNoop}
			c.Store.Path = ""
		}, false},
		{"http without url", func(c *Config) { c.Transport.Kinds = []string{TransportHTTP} }, true},
		{"http wrong scheme", func(c *Config) {
			c.Transport.Kinds = []string{TransportHTTP}
			c.HTTP.URL = "ftp://example.com"
		}, true},
		{"http valid", func(c *Config) {
			c.Transport.Kinds = []string{TransportHTTP}
			c.HTTP.URL = "https://example.com/events"
		}, false},
		{"http zero timeout", func(c *Config) {
			c.Transport.Kinds = []string{TransportHTTP}
			c.HTTP.URL = "https://example.com/events"
			c.HTTP.Timeout = 0
		}, true},
		{"websocket http scheme", func(c *Config) {
			c.Transport.Kinds = []string{TransportWebSocket}
			c.WebSocket.URL = "http://example.com/ws"
		}, true},
		{"websocket valid", func(c *Config) {
			c.Transport.Kinds = []string{TransportWebSocket}
			c.WebSocket.URL = "wss://example.com/ws"
		}, false},
		{"async zero queue", func(c *Config) { c.Transport.QueueSize = 0 }, true},
		{"sync zero queue", func(c *Config) {
			c.Transport.Async = false
			c.Transport.QueueSize = 0
		}, false},
		{"negative retention", func(c *Config) { c.Store.RetentionDays = -1 }, true},
		{"bad schedule", func(c *Config) { c.Store.RetentionSchedule = "every tuesday" }, true},
		{"negative body limit", func(c *Config) { c.Server.MaxBodyBytes = -1 }, true},
		{"metrics without listen", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = ""
		}, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"file output without file", func(c *Config) { c.Logging.Output = "file" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, should wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.toml")
	storePath := filepath.ToSlash(filepath.Join(dir, "events.db"))

	content := `
[client]
release = "api@2.0.0"
environment = "staging"

[client.tags]
team = "payments"

[transport]
kinds = ["store", "http"]
async = false

[store]
path = "` + storePath + `"
retention_days = 7

[http]
url = "https://events.example.com/api/events"
auth_token = "secret"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.Release != "api@2.0.0" {
		t.Errorf("Release = %q", cfg.Client.Release)
	}
	if cfg.Client.Tags["team"] != "payments" {
		t.Errorf("Tags = %v", cfg.Client.Tags)
	}
	if !cfg.HasTransport(TransportHTTP) || !cfg.HasTransport(TransportStore) {
		t.Errorf("Kinds = %v", cfg.Transport.Kinds)
	}
	if cfg.HasTransport(TransportWebSocket) {
		t.Error("websocket should not be configured")
	}
	if cfg.Transport.Async {
		t.Error("Async should be false")
	}
	if cfg.Store.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d", cfg.Store.RetentionDays)
	}
	// untouched keys keep defaults
	if cfg.HTTP.Timeout != 30 {
		t.Errorf("HTTP.Timeout = %d, want default 30", cfg.HTTP.Timeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[transport\nkinds = "), 0600)
	if _, err := Load(bad); err == nil {
		t.Error("Load() of malformed TOML should fail")
	}

	invalid := filepath.Join(dir, "invalid.toml")
	os.WriteFile(invalid, []byte("[logging]\nlevel = \"loud\"\n"), 0600)
	_, err := Load(invalid)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.toml")
	os.WriteFile(path, []byte("[client]\nrelease = \"from-file\"\n"), 0600)

	t.Setenv("BEACON_RELEASE", "from-env")
	t.Setenv("BEACON_TRANSPORT", "noop, http")
	t.Setenv("BEACON_HTTP_URL", "http://localhost:8080/events")
	t.Setenv("BEACON_QUEUE_SIZE", "5")
	t.Setenv("BEACON_RETENTION_DAYS", "3")
	t.Setenv("BEACON_LOG_LEVEL", "debug")
	t.Setenv("BEACON_SERVER_LISTEN", ":9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.Release != "from-env" {
		t.Errorf("Release = %q, want from-env", cfg.Client.Release)
	}
	if len(cfg.Transport.Kinds) != 2 || cfg.Transport.Kinds[0] != "noop" || cfg.Transport.Kinds[1] != "http" {
		t.Errorf("Kinds = %v", cfg.Transport.Kinds)
	}
	if cfg.Transport.QueueSize != 5 {
		t.Errorf("QueueSize = %d", cfg.Transport.QueueSize)
	}
	if cfg.Store.RetentionDays != 3 {
		t.Errorf("RetentionDays = %d", cfg.Store.RetentionDays)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Server.Listen != ":9999" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
}

func TestLoad_BadEnvInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.toml")
	os.WriteFile(path, []byte(""), 0600)
	t.Setenv("BEACON_QUEUE_SIZE", "many")

	if _, err := Load(path); err == nil {
		t.Error("Load() with non-numeric BEACON_QUEUE_SIZE should fail")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "beacon.toml")

	if err := GenerateExampleConfig(path); err != nil {
		t.Fatalf("GenerateExampleConfig() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of generated config error = %v", err)
	}
	if cfg.HTTP.URL != "https://events.example.com/api/events" {
		t.Errorf("HTTP.URL = %q", cfg.HTTP.URL)
	}
	if !cfg.HasTransport(TransportHTTP) {
		t.Errorf("Kinds = %v", cfg.Transport.Kinds)
	}
}

func TestSave_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "nope"
	if err := Save(cfg, filepath.Join(t.TempDir(), "beacon.toml")); err == nil {
		t.Error("Save() of invalid config should fail")
	}
}

func TestToLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "file"
	cfg.Logging.File = "/var/log/beacon.log"

	lc := cfg.ToLoggerConfig()
	if lc.Output != "/var/log/beacon.log" {
		t.Errorf("Output = %q, want file path", lc.Output)
	}

	cfg.Logging.Output = "stdout"
	if got := cfg.ToLoggerConfig().Output; got != "stdout" {
		t.Errorf("Output = %q, want stdout", got)
	}
}
