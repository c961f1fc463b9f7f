// Package event turns errors into protocol events.
package event

import (
	"github.com/armorclaw/beacon/pkg/chain"
	"github.com/armorclaw/beacon/pkg/protocol"
	"github.com/armorclaw/beacon/pkg/typename"
)

// Assembler builds events from error chains. It holds no mutable state and
// is safe for concurrent use.
type Assembler struct {
	extractor typename.Extractor
}

// Option configures an Assembler
type Option func(*Assembler)

// WithExtractor replaces the heuristic type name extractor
func WithExtractor(e typename.Extractor) Option {
	return func(a *Assembler) {
		if e != nil {
			a.extractor = e
		}
	}
}

// New creates an Assembler using the heuristic extractor unless overridden
func New(opts ...Option) *Assembler {
	a := &Assembler{extractor: typename.Heuristic{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAssembler = New()

// FromError builds an event from err with the default assembler
func FromError(err error) protocol.Event {
	return defaultAssembler.FromError(err)
}

// FromLink builds an event from l with the default assembler
func FromLink(l chain.Link) protocol.Event {
	return defaultAssembler.FromLink(l)
}

// FromError builds an event describing err and all of its causes
func (a *Assembler) FromError(err error) protocol.Event {
	return a.FromLink(chain.FromError(err))
}

// FromLink builds an error level event whose exceptions are ordered root
// cause first, so the original trigger is listed before the errors that
// wrapped it. A nil link yields an event without exceptions.
func (a *Assembler) FromLink(l chain.Link) protocol.Event {
	links := chain.Walk(l)

	var exceptions []protocol.Exception
	if len(links) > 0 {
		exceptions = make([]protocol.Exception, len(links))
	}
	for i, link := range links {
		exceptions[len(links)-1-i] = a.Exception(link)
	}

	return protocol.Event{
		Exception: exceptions,
		Level:     protocol.LevelError,
	}
}

// Exception converts a single link, ignoring its cause
func (a *Assembler) Exception(l chain.Link) protocol.Exception {
	value := l.Error()
	return protocol.Exception{
		Type:  a.extractor.TypeName(l.Debug()),
		Value: &value,
	}
}
