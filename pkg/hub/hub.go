// Package hub holds the stack of processing contexts that captured events
// are routed through.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/armorclaw/beacon/pkg/breadcrumb"
	"github.com/armorclaw/beacon/pkg/capture"
	"github.com/armorclaw/beacon/pkg/protocol"
)

// Client receives events from a hub
type Client interface {
	CaptureEvent(ev *protocol.Event) (uuid.UUID, error)
}

// layer is one entry of the hub stack
type layer struct {
	client Client
	crumbs *breadcrumb.Buffer
}

// IsActive implements capture.Processor
func (l layer) IsActive() bool {
	return l.client != nil
}

// CaptureEvent implements capture.Processor. The layer's breadcrumbs are
// attached to a copy of ev unless ev already carries its own.
func (l layer) CaptureEvent(ev *protocol.Event) (uuid.UUID, error) {
	if l.client == nil {
		return uuid.Nil, nil
	}
	if l.crumbs != nil && len(ev.Breadcrumbs) == 0 {
		if crumbs := l.crumbs.All(); len(crumbs) > 0 {
			ev = ev.Clone()
			ev.Breadcrumbs = crumbs
		}
	}
	return l.client.CaptureEvent(ev)
}

// Hub is a stack of layers. The top layer decides where events go.
type Hub struct {
	mu          sync.RWMutex
	stack       []layer
	lastEventID uuid.UUID

	dispatcher *capture.Dispatcher
}

// New creates a hub whose root layer holds client, which may be nil
func New(client Client, opts ...capture.Option) *Hub {
	h := &Hub{stack: []layer{{client: client, crumbs: breadcrumb.New(breadcrumb.DefaultSize)}}}
	h.dispatcher = capture.New(h, opts...)
	return h
}

// Active implements capture.Context. The returned processor is a copy of
// the top layer, so later stack changes do not affect it.
func (h *Hub) Active() capture.Processor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1]
}

// Client returns the client of the top layer
func (h *Hub) Client() Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1].client
}

// BindClient replaces the client of the top layer
func (h *Hub) BindClient(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack[len(h.stack)-1].client = client
}

// PushClient pushes a new layer holding client and returns a function that
// pops it again. The new layer starts with a copy of the current
// breadcrumbs.
func (h *Hub) PushClient(client Client) (pop func()) {
	h.mu.Lock()
	top := h.stack[len(h.stack)-1]
	h.stack = append(h.stack, layer{client: client, crumbs: top.crumbs.Clone()})
	depth := len(h.stack)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if len(h.stack) >= depth {
				h.stack = h.stack[:depth-1]
			}
		})
	}
}

// PopLayer removes the top layer. The root layer is never removed.
func (h *Hub) PopLayer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) > 1 {
		h.stack = h.stack[:len(h.stack)-1]
	}
}

// Depth returns the number of layers
func (h *Hub) Depth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stack)
}

// AddBreadcrumb records c on the top layer
func (h *Hub) AddBreadcrumb(c protocol.Breadcrumb) {
	h.mu.RLock()
	crumbs := h.stack[len(h.stack)-1].crumbs
	h.mu.RUnlock()
	crumbs.Add(c)
}

// Breadcrumbs returns the breadcrumbs of the top layer, oldest first
func (h *Hub) Breadcrumbs() []protocol.Breadcrumb {
	h.mu.RLock()
	crumbs := h.stack[len(h.stack)-1].crumbs
	h.mu.RUnlock()
	return crumbs.All()
}

// ClearBreadcrumbs empties the top layer's breadcrumbs
func (h *Hub) ClearBreadcrumbs() {
	h.mu.RLock()
	crumbs := h.stack[len(h.stack)-1].crumbs
	h.mu.RUnlock()
	crumbs.Clear()
}

// CaptureError sends err with its cause chain through the top layer
func (h *Hub) CaptureError(err error) (uuid.UUID, error) {
	id, sendErr := h.dispatcher.CaptureError(err)
	h.recordID(id)
	return id, sendErr
}

// CaptureEvent sends ev through the top layer
func (h *Hub) CaptureEvent(ev *protocol.Event) (uuid.UUID, error) {
	id, err := h.dispatcher.CaptureEvent(ev)
	h.recordID(id)
	return id, err
}

// LastEventID returns the id of the last event accepted by a client
func (h *Hub) LastEventID() uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastEventID
}

func (h *Hub) recordID(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	h.mu.Lock()
	h.lastEventID = id
	h.mu.Unlock()
}

// Process-wide hub used by the package level helpers of beacon
var (
	current   = New(nil)
	currentMu sync.RWMutex
)

// Current returns the process-wide hub
func Current() *Hub {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// SetCurrent replaces the process-wide hub. A nil hub resets it to an empty one.
func SetCurrent(h *Hub) {
	if h == nil {
		h = New(nil)
	}
	currentMu.Lock()
	defer currentMu.Unlock()
	current = h
}
