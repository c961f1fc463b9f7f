// Package breadcrumb keeps a bounded trail of what happened before an error
package breadcrumb

import (
	"sync"
	"time"

	"github.com/armorclaw/beacon/pkg/protocol"
)

// DefaultSize is the capacity used when none is given
const DefaultSize = 100

// Buffer is a thread-safe circular buffer of breadcrumbs
type Buffer struct {
	crumbs []protocol.Breadcrumb
	size   int
	head   int
	count  int
	mu     sync.RWMutex
}

// New creates a buffer holding at most size breadcrumbs
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{
		crumbs: make([]protocol.Breadcrumb, size),
		size:   size,
	}
}

// Add records a breadcrumb, evicting the oldest when full. A zero
// timestamp is set to now.
func (b *Buffer) Add(c protocol.Breadcrumb) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.crumbs[b.head] = c
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// All returns the breadcrumbs oldest first
func (b *Buffer) All() []protocol.Breadcrumb {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(b.count)
}

// Last returns the n most recent breadcrumbs, oldest first
func (b *Buffer) Last(n int) []protocol.Breadcrumb {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(n)
}

func (b *Buffer) lastLocked(n int) []protocol.Breadcrumb {
	if b.count == 0 || n <= 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]protocol.Breadcrumb, n)
	for i := 0; i < n; i++ {
		idx := (b.head - 1 - i + b.size) % b.size
		result[n-1-i] = b.crumbs[idx]
	}
	return result
}

// Clear removes every breadcrumb
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.crumbs = make([]protocol.Breadcrumb, b.size)
	b.head = 0
	b.count = 0
}

// Len returns the number of breadcrumbs held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	return b.size
}

// Clone returns an independent buffer with the same contents and capacity
func (b *Buffer) Clone() *Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := &Buffer{
		crumbs: make([]protocol.Breadcrumb, b.size),
		size:   b.size,
		head:   b.head,
		count:  b.count,
	}
	copy(out.crumbs, b.crumbs)
	return out
}
