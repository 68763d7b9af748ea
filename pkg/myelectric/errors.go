package myelectric

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a failure surfaced to consumers.
type ErrorKind int

const (
	// ErrorKindGeneric is any failure that isn't otherwise categorized,
	// including every feed client error.
	ErrorKindGeneric ErrorKind = iota
	// ErrorKindNotConfigured means one or both feeds are not set.
	ErrorKindNotConfigured
	// ErrorKindUpdateFailed means persisting the app config failed. It is only
	// logged and never sent on the error stream.
	ErrorKindUpdateFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNotConfigured:
		return "notConfigured"
	case ErrorKindUpdateFailed:
		return "updateFailed"
	default:
		return "generic"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a categorized failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotConfigured is returned by a refresh when a feed id is missing.
var ErrNotConfigured = &Error{Kind: ErrorKindNotConfigured}

// Classify returns the kind of err. Anything that isn't an *Error is
// ErrorKindGeneric.
func Classify(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindGeneric
}
