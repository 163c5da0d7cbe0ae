package tinct

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies the fatal errors of analysis and compilation.
type ErrorKind int

// Every error is a hard abort of the current compilation unit.
const (
	AnalysisError        ErrorKind = iota + 1 // hint or flag makes no sense for a value
	UnionError                                // two classifications cannot be merged
	UnsupportedConstruct                      // operation or call shape not implemented
)

func (k ErrorKind) String() string {
	switch k {
	case AnalysisError:
		return "analysis error"
	case UnionError:
		return "union error"
	case UnsupportedConstruct:
		return "unsupported construct"
	}
	return "error"
}

// Sentinels for errors.Is.
var (
	ErrAnalysis    = errors.New(AnalysisError.String())
	ErrUnion       = errors.New(UnionError.String())
	ErrUnsupported = errors.New(UnsupportedConstruct.String())
)

// Error is the error type of this module. Graph, Block and Op carry the
// position at which the error has been detected, if known.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Graph string
	Block string
	Op    string
	Cause string // rendered cause chain, may be empty
}

// Errorf creates a new error of kind k.
func Errorf(k ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// At sets the position of an error, if not yet set.
func (e *Error) At(graph, block, op string) *Error {
	if e.Graph == "" {
		e.Graph, e.Block, e.Op = graph, block, op
	}
	return e
}

// WithCause sets the cause chain of an error.
func (e *Error) WithCause(cause string) *Error {
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Graph != "" {
		fmt.Fprintf(&b, " [in %s", e.Graph)
		if e.Block != "" {
			fmt.Fprintf(&b, ", %s", e.Block)
		}
		if e.Op != "" {
			fmt.Fprintf(&b, ", %s", e.Op)
		}
		b.WriteString("]")
	}
	if e.Cause != "" {
		b.WriteString("\n")
		b.WriteString(e.Cause)
	}
	return b.String()
}

// Unwrap makes errors.Is work with the kind sentinels.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case AnalysisError:
		return ErrAnalysis
	case UnionError:
		return ErrUnion
	case UnsupportedConstruct:
		return ErrUnsupported
	}
	return nil
}
