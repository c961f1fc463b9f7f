// Package transport delivers events to their destination.
//
// Transports own serialization and I/O. None of them retry: a failed send is
// reported to the caller once.
package transport

import (
	"context"
	"errors"

	"github.com/armorclaw/beacon/pkg/protocol"
)

var (
	ErrClosed    = errors.New("transport closed")
	ErrQueueFull = errors.New("transport queue full")
)

// Transport sends a single event
type Transport interface {
	Send(ctx context.Context, ev *protocol.Event) error
	Close() error
}

// Flusher is implemented by transports that buffer events
type Flusher interface {
	Flush(ctx context.Context) error
}

// Namer is implemented by transports that report a name for logs and metrics
type Namer interface {
	Name() string
}

// NameOf returns the transport's name, or "custom"
func NameOf(t Transport) string {
	if n, ok := t.(Namer); ok {
		return n.Name()
	}
	return "custom"
}

// Noop discards every event
type Noop struct{}

// Send implements Transport
func (Noop) Send(context.Context, *protocol.Event) error { return nil }

// Close implements Transport
func (Noop) Close() error { return nil }

// Name implements Namer
func (Noop) Name() string { return "noop" }
