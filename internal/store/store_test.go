package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "events.db"), RetentionDays: 7})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func testEvent(level protocol.Level, excType, msg string) *protocol.Event {
	return &protocol.Event{
		EventID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Platform:  "go",
		Release:   "beacon@1.0.0",
		Exception: []protocol.Exception{
			{Type: "RootError", Value: strPtr("root cause")},
			{Type: excType, Value: strPtr(msg)},
		},
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")

	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	if s.RetentionDays() != defaultRetentionDays {
		t.Errorf("RetentionDays() = %d, want %d", s.RetentionDays(), defaultRetentionDays)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("Open() with empty path should fail")
	}
}

func TestStore_SendAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := testEvent(protocol.LevelError, "NotFound", "user 42")
	if err := s.Send(ctx, ev); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := s.Get(ctx, ev.EventID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.EventID != ev.EventID {
		t.Errorf("EventID = %v, want %v", got.EventID, ev.EventID)
	}
	if got.ExceptionType != "NotFound" {
		t.Errorf("ExceptionType = %q, want NotFound", got.ExceptionType)
	}
	if got.Message != "user 42" {
		t.Errorf("Message = %q, want %q", got.Message, "user 42")
	}
	if got.Level != protocol.LevelError {
		t.Errorf("Level = %v, want error", got.Level)
	}
	if got.Event == nil {
		t.Fatal("Get() should decode the payload")
	}
	if len(got.Event.Exception) != 2 || got.Event.Exception[0].Type != "RootError" {
		t.Errorf("payload exceptions = %+v", got.Event.Exception)
	}
}

func TestStore_SendWithoutID(t *testing.T) {
	s := newTestStore(t)

	ev := testEvent(protocol.LevelError, "X", "y")
	ev.EventID = uuid.Nil
	if err := s.Send(context.Background(), ev); err == nil {
		t.Fatal("Send() without id should fail")
	}
}

func TestStore_MessageFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := &protocol.Event{EventID: uuid.New(), Level: protocol.LevelInfo, Message: "deploy finished"}
	if err := s.Send(ctx, ev); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, err := s.Get(ctx, ev.EventID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Message != "deploy finished" {
		t.Errorf("Message = %q, want event message", got.Message)
	}
	if got.ExceptionType != "" {
		t.Errorf("ExceptionType = %q, want empty", got.ExceptionType)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Query(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	events := []*protocol.Event{
		testEvent(protocol.LevelError, "NotFound", "a"),
		testEvent(protocol.LevelError, "Timeout", "b"),
		testEvent(protocol.LevelWarning, "NotFound", "c"),
	}
	for i, ev := range events {
		if err := s.Save(ctx, ev, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"all newest first", Query{}, []string{"c", "b", "a"}},
		{"oldest first", Query{Oldest: true}, []string{"a", "b", "c"}},
		{"by level", Query{Level: "error"}, []string{"b", "a"}},
		{"by type", Query{ExceptionType: "NotFound"}, []string{"c", "a"}},
		{"by release miss", Query{Release: "other"}, nil},
		{"since", Query{Since: base.Add(time.Minute)}, []string{"c", "b"}},
		{"until", Query{Until: base.Add(time.Minute)}, []string{"b", "a"}},
		{"limit offset", Query{Limit: 1, Offset: 1}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			var got []string
			for _, r := range results {
				got = append(got, r.Message)
				if r.Event != nil {
					t.Error("payload should not be decoded without WithEvent")
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Query() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Query()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStore_QueryWithEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Send(ctx, testEvent(protocol.LevelError, "X", "y")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	results, err := s.Query(ctx, Query{WithEvent: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].Event == nil {
		t.Fatalf("Query() = %+v, want one decoded event", results)
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := testEvent(protocol.LevelError, "X", "first")
	s.Send(ctx, ev)
	ev.Exception[1].Value = strPtr("second")
	s.Send(ctx, ev)

	results, _ := s.Query(ctx, Query{})
	if len(results) != 1 {
		t.Fatalf("got %d rows, want 1", len(results))
	}
	if results[0].Message != "second" {
		t.Errorf("Message = %q, want second", results[0].Message)
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := testEvent(protocol.LevelError, "X", "y")
	s.Send(ctx, ev)

	if err := s.Delete(ctx, ev.EventID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, ev.EventID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, ev.EventID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testEvent(protocol.LevelError, "Old", "stale")
	fresh := testEvent(protocol.LevelError, "Fresh", "recent")
	s.Save(ctx, old, time.Now().AddDate(0, 0, -30))
	s.Save(ctx, fresh, time.Now())

	removed, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if _, err := s.Get(ctx, fresh.EventID); err != nil {
		t.Errorf("fresh event should survive cleanup: %v", err)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() on empty store error = %v", err)
	}
	if stats.TotalEvents != 0 || stats.Oldest != nil {
		t.Errorf("empty Stats() = %+v", stats)
	}

	s.Send(ctx, testEvent(protocol.LevelError, "NotFound", "a"))
	s.Send(ctx, testEvent(protocol.LevelError, "NotFound", "b"))
	s.Send(ctx, testEvent(protocol.LevelFatal, "Panic", "c"))

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if stats.UniqueTypes != 2 {
		t.Errorf("UniqueTypes = %d, want 2", stats.UniqueTypes)
	}
	if stats.ByLevel["error"] != 2 || stats.ByLevel["fatal"] != 1 {
		t.Errorf("ByLevel = %v", stats.ByLevel)
	}
	if stats.ByType["NotFound"] != 2 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.Oldest == nil || stats.Newest == nil {
		t.Error("Oldest/Newest should be set")
	}
}

func TestStore_Retention(t *testing.T) {
	s := newTestStore(t)
	log := logger.NewWithWriter(io.Discard, logger.Config{})

	if err := s.StartRetention("not a schedule", log); err == nil {
		t.Error("StartRetention() with invalid spec should fail")
	}
	if s.RetentionRunning() {
		t.Error("failed StartRetention() should not leave a schedule running")
	}

	if err := s.StartRetention("", log); err != nil {
		t.Fatalf("StartRetention() error = %v", err)
	}
	if !s.RetentionRunning() {
		t.Error("RetentionRunning() = false after start")
	}
	if err := s.StartRetention("@every 1h", log); err != nil {
		t.Fatalf("restart StartRetention() error = %v", err)
	}

	s.StopRetention()
	if s.RetentionRunning() {
		t.Error("RetentionRunning() = true after stop")
	}
	s.StopRetention()
}
