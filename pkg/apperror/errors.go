package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUpstream     = errors.New("upstream error")
	ErrPersistence  = errors.New("persistence error")
	ErrCorruptState = errors.New("corrupt state")
)

// Error is a classified failure. Kind is one of the package sentinels,
// Op names the operation that failed and Err is the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Upstream classifies err as a remote API failure.
func Upstream(op string, err error) error {
	return &Error{Kind: ErrUpstream, Op: op, Err: err}
}

// Persistence classifies err as a store failure.
func Persistence(op string, err error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// CorruptState classifies err as an inconsistent store.
func CorruptState(op string, err error) error {
	return &Error{Kind: ErrCorruptState, Op: op, Err: err}
}

// Upstreamf is Upstream with a formatted cause.
func Upstreamf(op, format string, args ...any) error {
	return Upstream(op, fmt.Errorf(format, args...))
}

// Persistencef is Persistence with a formatted cause.
func Persistencef(op, format string, args ...any) error {
	return Persistence(op, fmt.Errorf(format, args...))
}

// KindOf returns the sentinel carried by err, or nil if err is unclassified.
func KindOf(err error) error {
	for _, k := range []error{ErrUpstream, ErrPersistence, ErrCorruptState} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
