// Package rserrors defines the error kinds shared across RocketSpeed's
// components, following the teacher's habit of returning plain errors and
// comparing them with sentinel values rather than panicking across package
// boundaries.
package rserrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to branch on failure mode
// without string-matching a message.
type Kind int

const (
	// Ok is the zero value of Kind; KindOf reports it for a nil error.
	Ok Kind = iota
	NotFound
	InvalidArgument
	IOError
	TimedOut
	NotInitialized
	QueueFull
	InternalError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case IOError:
		return "io_error"
	case TimedOut:
		return "timed_out"
	case NotInitialized:
		return "not_initialized"
	case QueueFull:
		return "queue_full"
	case InternalError:
		return "internal_error"
	default:
		return "ok"
	}
}

// Error is the concrete error type returned across RocketSpeed's package
// boundaries: a Kind plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error for op with kind and an optional wrapped cause.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether target shares the same Kind, so callers can write
// errors.Is(err, rserrors.New("", rserrors.NotFound, nil)).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, returning InternalError if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return Ok
	}
	return InternalError
}

var (
	ErrNotFound        = New("", NotFound, nil)
	ErrInvalidArgument = New("", InvalidArgument, nil)
	ErrTimedOut        = New("", TimedOut, nil)
	ErrNotInitialized  = New("", NotInitialized, nil)
	ErrQueueFull       = New("", QueueFull, nil)
)
