package tinct

import "fmt"

// --- Colors ----------------------------------------------------------------

// Color is the binding time of a value or an operation.
type Color int8

// Green values are known at specialization time, red values only at run time.
const (
	Green Color = iota
	Red
)

func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Red:
		return "red"
	}
	return fmt.Sprintf("color(%d)", int(c))
}

// --- A general purpose interface for tokens --------------------------------

// TokType is a category type for a Token. Constants are defined by scanners.
type TokType int

// Token represents an input token of a textual flow graph. Tokens are produced
// by a scanner.
//
//    TokType = Int         // identifier for this kind of tokens
//    Lexeme  = "42"        // lexeme how it appeared in the input stream
//    Value   = 42          // converted value, if any
//    Span    = 67…69       // occured from position 67 in the input stream
//
type Token interface {
	TokType() TokType
	Lexeme() string
	Value() interface{}
	Span() Span
}

// --- Spans ------------------------------------------------------------

// Span is a small type for capturing a run of input positions. A span denotes
// a start position and the position just behind the end.
type Span [2]uint64 // (x…y)

// From returns the start value of a span.
func (s Span) From() uint64 {
	return s[0]
}

// To returns the end value of a span.
func (s Span) To() uint64 {
	return s[1]
}

// Len returns the length of (x…y)
func (s Span) Len() uint64 {
	return s[1] - s[0]
}

// IsNull is true for the zero span.
func (s Span) IsNull() bool {
	return s == Span{}
}

func (s Span) String() string {
	return fmt.Sprintf("(%d…%d)", s[0], s[1])
}
