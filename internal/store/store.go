// Package store persists captured events to SQLite
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/armorclaw/beacon/pkg/protocol"
)

const (
	defaultRetentionDays = 30
	defaultQueryLimit    = 20
	maxQueryLimit        = 1000
)

// ErrNotFound is returned when an event id is not stored
var ErrNotFound = errors.New("event not found")

// Config configures the event store
type Config struct {
	Path          string // Path to SQLite database file
	RetentionDays int    // Days to keep events (0 = default 30)
}

// Store persists events to SQLite. It implements transport.Transport.
type Store struct {
	db            *sql.DB
	path          string
	retentionDays int
	mu            sync.RWMutex

	cron *cron.Cron
}

// Open opens or creates the event store
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:            db,
		path:          cfg.Path,
		retentionDays: cfg.RetentionDays,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id       TEXT PRIMARY KEY,
			level          TEXT NOT NULL,
			exception_type TEXT NOT NULL DEFAULT '',
			message        TEXT NOT NULL DEFAULT '',
			release        TEXT NOT NULL DEFAULT '',
			environment    TEXT NOT NULL DEFAULT '',
			event_json     TEXT NOT NULL,
			received_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_level ON events(level);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(exception_type);
		CREATE INDEX IF NOT EXISTS idx_events_release ON events(release);
		CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StoredEvent is an event read back from the store
type StoredEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	Level         protocol.Level  `json:"level"`
	ExceptionType string          `json:"exception_type"`
	Message       string          `json:"message"`
	Release       string          `json:"release,omitempty"`
	Environment   string          `json:"environment,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
	Event         *protocol.Event `json:"event,omitempty"`
}

// Name implements transport.Namer
func (s *Store) Name() string { return "store" }

// Send implements transport.Transport
func (s *Store) Send(ctx context.Context, ev *protocol.Event) error {
	return s.Save(ctx, ev, time.Now())
}

// Save persists ev with the given receive time. Saving an id twice replaces
// the earlier row.
func (s *Store) Save(ctx context.Context, ev *protocol.Event, receivedAt time.Time) error {
	if ev.EventID == uuid.Nil {
		return fmt.Errorf("cannot store event without id")
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	var excType, message string
	if exc := ev.Culprit(); exc != nil {
		excType = exc.Type
		if exc.Value != nil {
			message = *exc.Value
		}
	}
	if message == "" {
		message = ev.Message
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events
			(event_id, level, exception_type, message, release, environment, event_json, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.EventID.String(),
		ev.Level.String(),
		excType,
		message,
		ev.Release,
		ev.Environment,
		string(eventJSON),
		receivedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Query defines parameters for listing events
type Query struct {
	Level         string    // Filter by level name
	ExceptionType string    // Filter by captured exception type
	Release       string    // Filter by release
	Since         time.Time // Only events received at or after this time
	Until         time.Time // Only events received at or before this time
	Limit         int       // Max results (default 20, max 1000)
	Offset        int       // Pagination offset
	Oldest        bool      // Oldest first instead of newest first
	WithEvent     bool      // Decode the full event payload
}

const selectColumns = "SELECT event_id, level, exception_type, message, release, environment, event_json, received_at FROM events"

// Query lists events matching q, newest first unless q.Oldest is set
func (s *Store) Query(ctx context.Context, q Query) ([]StoredEvent, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	if q.Limit > maxQueryLimit {
		q.Limit = maxQueryLimit
	}

	query := selectColumns + " WHERE 1=1"
	args := []interface{}{}

	if q.Level != "" {
		query += " AND level = ?"
		args = append(args, q.Level)
	}
	if q.ExceptionType != "" {
		query += " AND exception_type = ?"
		args = append(args, q.ExceptionType)
	}
	if q.Release != "" {
		query += " AND release = ?"
		args = append(args, q.Release)
	}
	if !q.Since.IsZero() {
		query += " AND received_at >= ?"
		args = append(args, q.Since.UTC().UnixMilli())
	}
	if !q.Until.IsZero() {
		query += " AND received_at <= ?"
		args = append(args, q.Until.UTC().UnixMilli())
	}

	if q.Oldest {
		query += " ORDER BY received_at ASC, event_id ASC"
	} else {
		query += " ORDER BY received_at DESC, event_id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []StoredEvent
	for rows.Next() {
		se, err := scanEvent(rows, q.WithEvent)
		if err != nil {
			return nil, err
		}
		results = append(results, se)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, withEvent bool) (StoredEvent, error) {
	var (
		se         StoredEvent
		id, level  string
		eventJSON  string
		receivedAt int64
	)
	err := row.Scan(&id, &level, &se.ExceptionType, &se.Message, &se.Release, &se.Environment, &eventJSON, &receivedAt)
	if err != nil {
		return se, err
	}

	if se.EventID, err = uuid.Parse(id); err != nil {
		return se, fmt.Errorf("corrupt event id %q: %w", id, err)
	}
	if se.Level, err = protocol.ParseLevel(level); err != nil {
		return se, fmt.Errorf("corrupt level for %s: %w", id, err)
	}
	se.ReceivedAt = time.UnixMilli(receivedAt).UTC()

	if withEvent {
		var ev protocol.Event
		if err := json.Unmarshal([]byte(eventJSON), &ev); err != nil {
			return se, fmt.Errorf("corrupt payload for %s: %w", id, err)
		}
		se.Event = &ev
	}
	return se, nil
}

// Get returns a single event with its full payload
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE event_id = ?", id.String())
	se, err := scanEvent(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return &se, nil
}

// Delete removes an event permanently
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE event_id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Cleanup removes events older than the retention period
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	return s.CleanupBefore(ctx, time.Now().AddDate(0, 0, -s.retentionDays))
}

// CleanupBefore removes events received before cutoff
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE received_at < ?",
		cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return result.RowsAffected()
}

// Stats holds statistics about stored events
type Stats struct {
	TotalEvents int            `json:"total_events"`
	UniqueTypes int            `json:"unique_types"`
	ByLevel     map[string]int `json:"by_level"`
	ByType      map[string]int `json:"by_type"`
	Oldest      *time.Time     `json:"oldest,omitempty"`
	Newest      *time.Time     `json:"newest,omitempty"`
}

// Stats returns statistics about stored events
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		stats          Stats
		oldest, newest sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT exception_type), MIN(received_at), MAX(received_at) FROM events",
	).Scan(&stats.TotalEvents, &stats.UniqueTypes, &oldest, &newest)
	if err != nil {
		return stats, err
	}
	if oldest.Valid {
		t := time.UnixMilli(oldest.Int64).UTC()
		stats.Oldest = &t
	}
	if newest.Valid {
		t := time.UnixMilli(newest.Int64).UTC()
		stats.Newest = &t
	}

	if stats.ByLevel, err = s.countBy(ctx, "level"); err != nil {
		return stats, err
	}
	if stats.ByType, err = s.countBy(ctx, "exception_type"); err != nil {
		return stats, err
	}
	return stats, nil
}

// countBy groups on a fixed column name, never on user input
func (s *Store) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM events GROUP BY "+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// Close stops retention and closes the database connection
func (s *Store) Close() error {
	s.StopRetention()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// RetentionDays returns the configured retention period in days
func (s *Store) RetentionDays() int {
	return s.retentionDays
}
