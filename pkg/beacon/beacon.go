package beacon

import (
	"context"

	"github.com/google/uuid"

	"github.com/armorclaw/beacon/pkg/event"
	"github.com/armorclaw/beacon/pkg/hub"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/transport"
	"github.com/armorclaw/beacon/pkg/typename"
)

// CaptureError captures err and its causes on the process-wide hub and
// returns the event id. It returns uuid.Nil when nothing was sent: err is
// nil, no client is bound, the event was dropped, or delivery failed.
// Delivery failures are logged.
func CaptureError(err error) uuid.UUID {
	id, sendErr := hub.Current().CaptureError(err)
	if sendErr != nil {
		logger.Global().ErrorEvent(context.Background(), "failed to capture error", sendErr)
		return uuid.Nil
	}
	return id
}

// TryCaptureError is CaptureError that reports delivery failures
func TryCaptureError(err error) (uuid.UUID, error) {
	return hub.Current().CaptureError(err)
}

// CaptureEvent sends a prepared event on the process-wide hub
func CaptureEvent(ev *protocol.Event) uuid.UUID {
	id, err := hub.Current().CaptureEvent(ev)
	if err != nil {
		logger.Global().ErrorEvent(context.Background(), "failed to capture event", err)
		return uuid.Nil
	}
	return id
}

// EventFromError builds an event from err without sending it
func EventFromError(err error) protocol.Event {
	return event.FromError(err)
}

// ParseTypeFromDebug extracts a type name from a debug rendering
func ParseTypeFromDebug(debug string) string {
	return typename.Parse(debug)
}

// AddBreadcrumb records c on the process-wide hub. It is attached to the
// next captured event.
func AddBreadcrumb(c protocol.Breadcrumb) {
	hub.Current().AddBreadcrumb(c)
}

// LastEventID returns the id of the last event sent through the
// process-wide hub
func LastEventID() uuid.UUID {
	return hub.Current().LastEventID()
}

// Flush waits for the process-wide client to deliver queued events
func Flush(ctx context.Context) error {
	if f, ok := hub.Current().Client().(transport.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
