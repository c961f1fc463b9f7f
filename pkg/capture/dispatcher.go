// Package capture forwards events to the active processing context.
package capture

import (
	"github.com/google/uuid"

	"github.com/armorclaw/beacon/pkg/event"
	"github.com/armorclaw/beacon/pkg/protocol"
)

// Processor is one snapshot of the active processing context. A capture
// call checks IsActive and submits through the same Processor, so both see
// the same client.
type Processor interface {
	// IsActive reports whether a client is installed
	IsActive() bool

	// CaptureEvent submits ev and returns its identifier
	CaptureEvent(ev *protocol.Event) (uuid.UUID, error)
}

// Context yields the active processor. Active may return nil when nothing
// is installed.
type Context interface {
	Active() Processor
}

// ContextFunc adapts a function to the Context interface
type ContextFunc func() Processor

// Active implements Context
func (f ContextFunc) Active() Processor {
	return f()
}

// Dispatcher builds events from errors and hands them to the active context
type Dispatcher struct {
	ctx       Context
	assembler *event.Assembler
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithAssembler sets the assembler used for CaptureError
func WithAssembler(a *event.Assembler) Option {
	return func(d *Dispatcher) {
		if a != nil {
			d.assembler = a
		}
	}
}

// New creates a dispatcher bound to ctx
func New(ctx Context, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctx:       ctx,
		assembler: event.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CaptureError converts err into an event and submits it. When no client is
// active it does nothing and returns uuid.Nil without an error. A nil err is
// also a no-op.
func (d *Dispatcher) CaptureError(err error) (uuid.UUID, error) {
	if err == nil {
		return uuid.Nil, nil
	}

	p := d.active()
	if p == nil {
		return uuid.Nil, nil
	}

	ev := d.assembler.FromError(err)
	return p.CaptureEvent(&ev)
}

// CaptureEvent submits an already built event with the same no-client
// semantics as CaptureError
func (d *Dispatcher) CaptureEvent(ev *protocol.Event) (uuid.UUID, error) {
	if ev == nil {
		return uuid.Nil, nil
	}

	p := d.active()
	if p == nil {
		return uuid.Nil, nil
	}
	return p.CaptureEvent(ev)
}

func (d *Dispatcher) active() Processor {
	if d.ctx == nil {
		return nil
	}
	p := d.ctx.Active()
	if p == nil || !p.IsActive() {
		return nil
	}
	return p
}
