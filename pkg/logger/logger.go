// Package logger provides structured logging for beacon
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/armorclaw/beacon/pkg/chain"
	"github.com/armorclaw/beacon/pkg/protocol"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
	once         sync.Once
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Logger wraps slog.Logger with beacon specific helpers
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     string
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", "discard", or file path
	Component string
}

func parseLevel(s string) slog.Level {
	switch LogLevel(s) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "discard":
		return io.Discard, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// New creates a new logger instance
func New(cfg Config) (*Logger, error) {
	writer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(writer, cfg), nil
}

// NewWithWriter creates a logger writing to w. cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With("service", "beacon", "component", cfg.Component),
		component: cfg.Component,
	}
}

// Initialize sets up the global logger once
func Initialize(level, format, output string) error {
	var onceErr error
	once.Do(func() {
		if format == "" {
			format = "text"
		}
		if level == "" {
			level = "info"
		}

		l, err := New(Config{
			Level:     level,
			Format:    format,
			Output:    output,
			Component: "beacon",
		})
		if err != nil {
			onceErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}
		SetGlobal(l)

		l.Debug("logger initialized", "level", level, "format", format, "output", output)
	})
	return onceErr
}

// SetGlobal replaces the global logger
func SetGlobal(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the global logger, falling back to an info level text
// logger on stderr when none was set
func Global() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	return NewWithWriter(os.Stderr, Config{Level: "info", Component: "beacon"})
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a new logger with the component name set
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

// WithEventID returns a logger that tags every record with id
func (l *Logger) WithEventID(id uuid.UUID) *Logger {
	return &Logger{
		Logger:    l.Logger.With("event_id", protocol.EventIDString(id)),
		component: l.component,
	}
}

// EventIDAttr renders id in wire format for log records
func EventIDAttr(id uuid.UUID) slog.Attr {
	return slog.String("event_id", protocol.EventIDString(id))
}

// ErrorEvent logs an error with context
func (l *Logger) ErrorEvent(ctx context.Context, message string, err error, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("error_type", chain.ShortType(err)),
	}
	l.LogAttrs(ctx, slog.LevelError, message, append(base, attrs...)...)
}

// CaptureEvent records that an event left the client
func (l *Logger) CaptureEvent(ctx context.Context, ev *protocol.Event, transport string) {
	attrs := []slog.Attr{
		EventIDAttr(ev.EventID),
		slog.String("level", ev.Level.String()),
		slog.Int("exceptions", len(ev.Exception)),
		slog.String("transport", transport),
	}
	if exc := ev.Culprit(); exc != nil {
		attrs = append(attrs, slog.String("exception_type", exc.Type))
	}
	l.LogAttrs(ctx, slog.LevelDebug, "event captured", attrs...)
}

// Info logs an info message with the global logger
func Info(msg string, args ...any) {
	Global().Info(msg, args...)
}

// Warn logs a warning message with the global logger
func Warn(msg string, args ...any) {
	Global().Warn(msg, args...)
}

// Error logs an error message with the global logger
func Error(msg string, args ...any) {
	Global().Error(msg, args...)
}

// Debug logs a debug message with the global logger
func Debug(msg string, args ...any) {
	Global().Debug(msg, args...)
}
