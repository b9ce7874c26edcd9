package conntrack

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilter is returned by DirFilterBuilder.Build for constraints
	// that can never be applied.
	ErrInvalidFilter = errors.New("invalid conntrack filter")

	// ErrClosed is returned by Dump on a closed handle.
	ErrClosed = errors.New("conntrack handle is closed")

	// ErrUnsupported is returned by Connect on platforms without netfilter.
	ErrUnsupported = errors.New("conntrack is not supported on this platform")
)

// FieldError reports a filter field that failed validation.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: field %s: %q", e.Err, e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// OpError is a failure of the kernel connection-tracking facility.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return "conntrack " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
