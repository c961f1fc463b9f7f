package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/armorclaw/beacon/pkg/protocol"
)

// Multi fans each event out to several transports concurrently
type Multi struct {
	transports []Transport
}

// NewMulti creates a fan-out transport
func NewMulti(transports ...Transport) *Multi {
	return &Multi{transports: transports}
}

// Name implements Namer
func (m *Multi) Name() string {
	names := make([]string, len(m.transports))
	for i, t := range m.transports {
		names[i] = NameOf(t)
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Send implements Transport. Every transport receives the event even when
// another one fails; all failures are joined.
func (m *Multi) Send(ctx context.Context, ev *protocol.Event) error {
	errs := make([]error, len(m.transports))

	var g errgroup.Group
	for i, t := range m.transports {
		g.Go(func() error {
			if err := t.Send(ctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", NameOf(t), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Flush flushes every transport that buffers
func (m *Multi) Flush(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range m.transports {
		f, ok := t.(Flusher)
		if !ok {
			continue
		}
		g.Go(func() error { return f.Flush(ctx) })
	}
	return g.Wait()
}

// Close closes every transport
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
