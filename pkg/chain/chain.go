// Package chain walks the cause chain of an error.
package chain

// Link is one error of a cause chain
type Link interface {
	// Error returns the human readable message
	Error() string

	// Debug returns the developer facing representation, which by convention
	// starts with the error's type name
	Debug() string

	// Source returns the underlying cause, or nil at the end of the chain
	Source() Link
}

// Walk returns l followed by each of its causes, outermost first and root
// cause last. It returns nil for a nil link.
//
// The walk has no depth limit: a chain whose Source links form a cycle never
// terminates.
func Walk(l Link) []Link {
	var links []Link
	for cur := l; cur != nil; cur = cur.Source() {
		links = append(links, cur)
	}
	return links
}

// WalkError adapts err with FromError and walks it
func WalkError(err error) []Link {
	return Walk(FromError(err))
}
