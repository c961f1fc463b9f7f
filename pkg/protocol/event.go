package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mechanism describes how an exception was captured
type Mechanism struct {
	Type    string `json:"type,omitempty"`
	Handled *bool  `json:"handled,omitempty"`
}

// Exception is one error of a captured cause chain
type Exception struct {
	Type      string     `json:"type"`
	Value     *string    `json:"value,omitempty"`
	Module    string     `json:"module,omitempty"`
	Mechanism *Mechanism `json:"mechanism,omitempty"`
}

// Event is a single diagnostic record sent to the telemetry backend.
//
// The exception list is ordered root cause first: index 0 is the innermost
// error of the chain, the last entry is the error that was captured.
type Event struct {
	EventID     uuid.UUID
	Timestamp   time.Time
	Level       Level
	Platform    string
	Logger      string
	Release     string
	Environment string
	ServerName  string
	Message     string
	Exception   []Exception
	Breadcrumbs []Breadcrumb
	Tags        map[string]string
	Extra       map[string]any
}

// EventIDString renders id the way it travels on the wire: 32 lowercase hex
// characters without dashes.
func EventIDString(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

type exceptionValues struct {
	Values []Exception `json:"values"`
}

type breadcrumbValues struct {
	Values []Breadcrumb `json:"values"`
}

type wireEvent struct {
	EventID     string            `json:"event_id,omitempty"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
	Level       Level             `json:"level"`
	Platform    string            `json:"platform,omitempty"`
	Logger      string            `json:"logger,omitempty"`
	Release     string            `json:"release,omitempty"`
	Environment string            `json:"environment,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Message     string            `json:"message,omitempty"`
	Exception   *exceptionValues  `json:"exception,omitempty"`
	Breadcrumbs *breadcrumbValues `json:"breadcrumbs,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler using the event payload layout
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Level:       e.Level,
		Platform:    e.Platform,
		Logger:      e.Logger,
		Release:     e.Release,
		Environment: e.Environment,
		ServerName:  e.ServerName,
		Message:     e.Message,
		Tags:        e.Tags,
		Extra:       e.Extra,
	}
	if e.EventID != uuid.Nil {
		w.EventID = EventIDString(e.EventID)
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp.UTC()
		w.Timestamp = &ts
	}
	if len(e.Exception) > 0 {
		w.Exception = &exceptionValues{Values: e.Exception}
	}
	if len(e.Breadcrumbs) > 0 {
		w.Breadcrumbs = &breadcrumbValues{Values: e.Breadcrumbs}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Event{
		Level:       w.Level,
		Platform:    w.Platform,
		Logger:      w.Logger,
		Release:     w.Release,
		Environment: w.Environment,
		ServerName:  w.ServerName,
		Message:     w.Message,
		Tags:        w.Tags,
		Extra:       w.Extra,
	}
	if w.EventID != "" {
		id, err := uuid.Parse(w.EventID)
		if err != nil {
			return fmt.Errorf("invalid event_id: %w", err)
		}
		e.EventID = id
	}
	if w.Timestamp != nil {
		e.Timestamp = *w.Timestamp
	}
	if w.Exception != nil {
		e.Exception = w.Exception.Values
	}
	if w.Breadcrumbs != nil {
		e.Breadcrumbs = w.Breadcrumbs.Values
	}
	return nil
}

// Culprit returns the exception that was captured directly, which is the
// last entry of the root-cause-first list. It returns nil for events that
// carry no exception.
func (e *Event) Culprit() *Exception {
	if len(e.Exception) == 0 {
		return nil
	}
	return &e.Exception[len(e.Exception)-1]
}

// RootCause returns the innermost exception, or nil.
func (e *Event) RootCause() *Exception {
	if len(e.Exception) == 0 {
		return nil
	}
	return &e.Exception[0]
}

// Clone returns a copy of the event that shares no maps or slices with e.
func (e *Event) Clone() *Event {
	out := *e
	if e.Exception != nil {
		out.Exception = make([]Exception, len(e.Exception))
		copy(out.Exception, e.Exception)
	}
	if e.Breadcrumbs != nil {
		out.Breadcrumbs = make([]Breadcrumb, len(e.Breadcrumbs))
		copy(out.Breadcrumbs, e.Breadcrumbs)
	}
	if e.Tags != nil {
		out.Tags = make(map[string]string, len(e.Tags))
		for k, v := range e.Tags {
			out.Tags[k] = v
		}
	}
	if e.Extra != nil {
		out.Extra = make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}
