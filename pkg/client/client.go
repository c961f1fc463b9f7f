// Package client enriches assembled events and hands them to a transport
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armorclaw/beacon/internal/metrics"
	"github.com/armorclaw/beacon/pkg/logger"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/transport"
)

// Platform is stamped on every event sent by this client
const Platform = "go"

// Options configures a Client
type Options struct {
	Release     string
	Environment string
	ServerName  string // defaults to the host name
	Tags        map[string]string

	Transport transport.Transport

	// BeforeSend may modify the event or return nil to drop it
	BeforeSend func(*protocol.Event) *protocol.Event

	Logger  *logger.Logger
	Metrics *metrics.Recorder
}

// Client enriches events and sends them through its transport
type Client struct {
	opts      Options
	transport transport.Transport
	name      string
	log       *logger.Logger
	recorder  *metrics.Recorder

	mu     sync.RWMutex
	closed bool
}

// New creates a client. A transport is required.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("client requires a transport")
	}
	if opts.ServerName == "" {
		if host, err := os.Hostname(); err == nil {
			opts.ServerName = host
		}
	}

	name := transport.NameOf(opts.Transport)
	c := &Client{
		opts:      opts,
		transport: opts.Transport,
		name:      name,
		log:       opts.Logger,
		recorder:  opts.Metrics,
	}
	if c.log == nil {
		c.log = logger.Global()
	}
	c.log = c.log.WithComponent("client")
	if c.recorder == nil {
		c.recorder = metrics.NewRecorder(name)
	}
	return c, nil
}

// Options returns a copy of the client options
func (c *Client) Options() Options {
	return c.opts
}

// Metrics returns the client's recorder
func (c *Client) Metrics() *metrics.Recorder {
	return c.recorder
}

// CaptureEvent enriches a copy of ev and sends it. It returns the id the
// event was sent under, or uuid.Nil when the event was dropped or the send
// failed.
func (c *Client) CaptureEvent(ev *protocol.Event) (uuid.UUID, error) {
	if ev == nil {
		return uuid.Nil, nil
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		c.recorder.RecordDropped(metrics.ReasonClosed)
		return uuid.Nil, transport.ErrClosed
	}

	prepared := c.prepare(ev)
	if c.opts.BeforeSend != nil {
		id := prepared.EventID
		prepared = c.opts.BeforeSend(prepared)
		if prepared == nil {
			c.recorder.RecordDropped(metrics.ReasonBeforeSend)
			c.log.Debug("event dropped by before_send", logger.EventIDAttr(id))
			return uuid.Nil, nil
		}
		if prepared.EventID == uuid.Nil {
			prepared.EventID = uuid.New()
		}
	}

	ctx := context.Background()
	start := time.Now()
	err := c.transport.Send(ctx, prepared)
	c.recorder.RecordSendDuration(time.Since(start))
	if err != nil {
		// async transports count their own drops
		if !errors.Is(err, transport.ErrQueueFull) && !errors.Is(err, transport.ErrClosed) {
			c.recorder.RecordSendError()
		}
		return uuid.Nil, fmt.Errorf("send event %s via %s: %w", protocol.EventIDString(prepared.EventID), c.name, err)
	}

	c.recorder.RecordCaptured()
	c.log.CaptureEvent(ctx, prepared, c.name)
	return prepared.EventID, nil
}

// prepare fills the fields an assembled event leaves empty
func (c *Client) prepare(ev *protocol.Event) *protocol.Event {
	out := ev.Clone()

	if out.EventID == uuid.Nil {
		out.EventID = uuid.New()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	if out.Platform == "" {
		out.Platform = Platform
	}
	if out.Release == "" {
		out.Release = c.opts.Release
	}
	if out.Environment == "" {
		out.Environment = c.opts.Environment
	}
	if out.ServerName == "" {
		out.ServerName = c.opts.ServerName
	}

	if len(c.opts.Tags) > 0 {
		tags := make(map[string]string, len(c.opts.Tags)+len(out.Tags))
		for k, v := range c.opts.Tags {
			tags[k] = v
		}
		for k, v := range out.Tags {
			tags[k] = v
		}
		out.Tags = tags
	}
	return out
}

// Flush waits for buffered events to be delivered
func (c *Client) Flush(ctx context.Context) error {
	if f, ok := c.transport.(transport.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Close closes the transport. Later captures fail with transport.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.transport.Close()
}
