package chain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Debugger is implemented by errors that provide their own debug text
type Debugger interface {
	Debug() string
}

type singleUnwrapper interface{ Unwrap() error }
type multiUnwrapper interface{ Unwrap() []error }

// errorLink exposes a plain Go error as a Link
type errorLink struct {
	err error
}

// FromError adapts any Go error to a Link. Errors that already implement
// Link are returned unchanged; nil yields nil.
//
// The debug text is taken from Debug() when the error is a Debugger, from
// GoString() when it is a fmt.GoStringer, and otherwise generated as
// ShortType("message"). The cause is the result of Unwrap() error, or the
// first non-nil result of Unwrap() []error.
//
// A nil pointer held in a non-nil error renders as "<nil>", the way fmt
// prints it, and ends the chain.
func FromError(err error) Link {
	if err == nil {
		return nil
	}
	if l, ok := err.(Link); ok && !isNilPointer(err) {
		return l
	}
	return errorLink{err: err}
}

func (l errorLink) Error() string {
	return safeString(l.err, l.err.Error)
}

func (l errorLink) Debug() string {
	switch v := l.err.(type) {
	case Debugger:
		return safeString(l.err, v.Debug)
	case fmt.GoStringer:
		return safeString(l.err, v.GoString)
	}
	return ShortType(l.err) + "(" + strconv.Quote(l.Error()) + ")"
}

func (l errorLink) Source() Link {
	if isNilPointer(l.err) {
		return nil
	}
	return FromError(unwrap(l.err))
}

// Unwrap returns the adapted error
func (l errorLink) Unwrap() error {
	return l.err
}

// safeString calls fn, rendering a panic from a nil receiver as "<nil>" like
// fmt's catchPanic. Any other panic propagates.
func safeString(err error, fn func() string) (s string) {
	defer func() {
		if r := recover(); r != nil {
			if !isNilPointer(err) {
				panic(r)
			}
			s = "<nil>"
		}
	}()
	return fn()
}

func isNilPointer(err error) bool {
	v := reflect.ValueOf(err)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func unwrap(err error) error {
	switch v := err.(type) {
	case singleUnwrapper:
		return v.Unwrap()
	case multiUnwrapper:
		for _, e := range v.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

// ShortType returns the dynamic type name of v without pointer markers or
// package qualifier, e.g. "PathError" for a *fs.PathError.
func ShortType(v any) string {
	name := strings.TrimLeft(fmt.Sprintf("%T", v), "*")

	// Keep generic type arguments intact: only strip the qualifier in front
	// of the base name.
	base, args, _ := strings.Cut(name, "[")
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	if args != "" {
		return base + "[" + args
	}
	return base
}
