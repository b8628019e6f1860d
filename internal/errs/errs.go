// Package errs defines the error taxonomy shared by every gossip
// subsystem. Every error that crosses a package boundary is wrapped in
// an *Error carrying a Kind so callers can branch on what happened
// instead of parsing message text.
package errs

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies an error the way spec section 7 enumerates them.
type Kind int

const (
	General Kind = iota
	NoPrivateKey
	KeyNotExportable
	WrongEventKind
	EventNotFound
	Duplicate
	UnindexedQuery
	HTTPError
	UrlParse
	Timeout
	Serialization
	Storage
)

func (k Kind) String() string {
	switch k {
	case NoPrivateKey:
		return "NoPrivateKey"
	case KeyNotExportable:
		return "KeyNotExportable"
	case WrongEventKind:
		return "WrongEventKind"
	case EventNotFound:
		return "EventNotFound"
	case Duplicate:
		return "Duplicate"
	case UnindexedQuery:
		return "UnindexedQuery"
	case HTTPError:
		return "HTTPError"
	case UrlParse:
		return "UrlParse"
	case Timeout:
		return "Timeout"
	case Serialization:
		return "Serialization"
	case Storage:
		return "Storage"
	default:
		return "General"
	}
}

// Error is the concrete error type produced by every gossip package.
type Error struct {
	Kind Kind
	Err  error
	File string
	Line int
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind, wrapping cause (which may be
// nil) and formatting an optional message with fmt.Errorf semantics.
func New(kind Kind, cause error, format string, args ...any) *Error {
	e := &Error{Kind: kind}
	if format != "" {
		if cause != nil {
			e.Err = fmt.Errorf(format+": %w", append(args, cause)...)
		} else {
			e.Err = fmt.Errorf(format, args...)
		}
	} else {
		e.Err = cause
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		e.File, e.Line = file, line
	}
	return e
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
