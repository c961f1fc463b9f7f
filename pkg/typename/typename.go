// Package typename recovers a short type name from an error's debug text.
//
// Debug output of a named error type conventionally starts with the type's
// name followed by its fields, so the name can be recovered without a type
// registry: everything before the first structural delimiter is the name.
// The heuristic is approximate and gets custom debug formats that do not lead
// with the type name wrong.
package typename

import "strings"

// delimiters end the leading type name in debug output
const delimiters = " ({\r\n"

// Parse returns the token of debug that precedes the first delimiter, with
// surrounding whitespace trimmed.
//
// Only the selected token is trimmed, never the whole input, so debug text
// that starts with a space or newline yields an empty name:
//
//	Parse("ParseIntError { kind: InvalidDigit }") // "ParseIntError"
//	Parse("InvalidProjectId(EmptyValue)")         // "InvalidProjectId"
//	Parse("\tMyStruct")                           // "MyStruct"
//	Parse("\nMyStruct")                           // ""
func Parse(debug string) string {
	if i := strings.IndexAny(debug, delimiters); i >= 0 {
		debug = debug[:i]
	}
	return strings.TrimSpace(debug)
}

// Extractor derives an exception type name from debug text
type Extractor interface {
	TypeName(debug string) string
}

// Heuristic is the default Extractor, backed by Parse
type Heuristic struct{}

// TypeName implements Extractor
func (Heuristic) TypeName(debug string) string {
	return Parse(debug)
}

// Func adapts a plain function to the Extractor interface
type Func func(debug string) string

// TypeName implements Extractor
func (f Func) TypeName(debug string) string {
	return f(debug)
}
