package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/armorclaw/beacon/internal/metrics"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
)

const (
	defaultQueueSize    = 256
	defaultDrainTimeout = 5 * time.Second
	flushPollInterval   = 10 * time.Millisecond
)

// AsyncOption configures an Async wrapper
type AsyncOption func(*Async)

// WithQueueSize sets the channel buffer capacity. Default: 256.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queueSize = n
		}
	}
}

// WithOnError sets the callback invoked when the inner transport fails.
// Default: logs a warning.
func WithOnError(f func(*protocol.Event, error)) AsyncOption {
	return func(a *Async) {
		if f != nil {
			a.errFunc = f
		}
	}
}

// WithRecorder reports queue depth and drops through r
func WithRecorder(r *metrics.Recorder) AsyncOption {
	return func(a *Async) { a.recorder = r }
}

// WithDrainTimeout bounds how long Close waits for queued events. Default: 5s.
func WithDrainTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.drainTimeout = d }
}

// Async decouples capture from delivery through a buffered channel drained
// by one background goroutine. Send never blocks: when the queue is full the
// event is dropped and ErrQueueFull is returned.
type Async struct {
	inner        Transport
	ch           chan *protocol.Event
	done         chan struct{}
	errFunc      func(*protocol.Event, error)
	recorder     *metrics.Recorder
	queueSize    int
	drainTimeout time.Duration
	pending      atomic.Int64

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewAsync wraps inner and starts the drain goroutine
func NewAsync(inner Transport, opts ...AsyncOption) *Async {
	a := &Async{
		inner:        inner,
		queueSize:    defaultQueueSize,
		drainTimeout: defaultDrainTimeout,
	}
	a.errFunc = func(ev *protocol.Event, err error) {
		logger.Global().Warn("async transport send failed",
			"event_id", protocol.EventIDString(ev.EventID),
			"transport", NameOf(a.inner),
			"error", err,
		)
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.recorder == nil {
		a.recorder = metrics.NewRecorder("async")
	}
	a.ch = make(chan *protocol.Event, a.queueSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Name implements Namer
func (a *Async) Name() string { return "async(" + NameOf(a.inner) + ")" }

// Send queues ev for delivery
func (a *Async) Send(_ context.Context, ev *protocol.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.recorder.RecordDropped(metrics.ReasonClosed)
		return ErrClosed
	}

	a.pending.Add(1)
	select {
	case a.ch <- ev:
		a.recorder.SetQueueDepth(len(a.ch))
		return nil
	default:
		a.pending.Add(-1)
		a.recorder.RecordDropped(metrics.ReasonQueueFull)
		return ErrQueueFull
	}
}

// Pending returns the number of queued or in-flight events
func (a *Async) Pending() int {
	return int(a.pending.Load())
}

// Flush blocks until every queued event has been handed to the inner
// transport or ctx is done
func (a *Async) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()

	for a.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if f, ok := a.inner.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close stops accepting events, waits for the queue to drain (bounded by
// the drain timeout) and closes the inner transport
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()

		select {
		case <-a.done:
		case <-time.After(a.drainTimeout):
			logger.Global().Warn("async transport drain timed out", "pending", a.Pending())
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for ev := range a.ch {
		if err := a.inner.Send(context.Background(), ev); err != nil {
			a.errFunc(ev, err)
		}
		a.pending.Add(-1)
		a.recorder.SetQueueDepth(len(a.ch))
	}
}
