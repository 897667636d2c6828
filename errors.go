package spdb

// errors.go defines the error taxonomy of the handle layer.

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a DB with no open database.
	ErrClosed = errors.New("spdb: operation on a closed database")

	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("spdb: key not found")

	// ErrInvalidOption is wrapped by every validation failure: an unknown
	// option id, a value of the wrong type or shape, an out-of-range number
	// or an unknown scan order. Validation runs before the engine is touched.
	ErrInvalidOption = errors.New("spdb: invalid option")

	// ErrProtocolViolation is matched by the "cursor failed" engine error
	// raised when a fetch succeeded but produced no usable key or value.
	ErrProtocolViolation = errors.New("spdb: engine protocol violation")

	// ErrComparatorFailure is wrapped by every ComparatorError.
	ErrComparatorFailure = errors.New("spdb: custom comparator failure")

	// ErrTxnInProgress is returned by Open, Close and Destroy while a
	// transaction is active. Deferred close does not compose with transactions.
	ErrTxnInProgress = errors.New("spdb: transaction in progress")

	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("spdb: database handle destroyed")
)

// EngineError carries a failure reported by the storage engine. Msg is the
// engine's diagnostic text, verbatim.
type EngineError struct {
	Op  string
	Msg string
	Err error
}

func (e *EngineError) Error() string {
	return e.Msg
}

// Unwrap returns the underlying engine error, if any.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func engineError(op string, err error) error {
	return &EngineError{Op: op, Msg: err.Error(), Err: err}
}

// errCursorFailed is the protocol-violation error of a cursor fetch.
func errCursorFailed(op string) error {
	return &EngineError{Op: op, Msg: "cursor failed", Err: ErrProtocolViolation}
}

// ComparatorFailureKind separates the two ways a custom comparator can fail.
type ComparatorFailureKind int

const (
	// ComparatorPanicked means the callback panicked.
	ComparatorPanicked ComparatorFailureKind = iota
	// ComparatorGarbage means the callback returned an error instead of an
	// ordering.
	ComparatorGarbage
)

// ComparatorError reports a custom comparator failure. The comparison that
// failed was answered with the default ordering instead.
type ComparatorError struct {
	Kind ComparatorFailureKind
	Err  error
}

func (e *ComparatorError) Error() string {
	var msg string
	switch e.Kind {
	case ComparatorPanicked:
		msg = "failed to call custom comparison function"
	default:
		msg = "custom comparison function returned garbage"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the callback's own error.
func (e *ComparatorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrComparatorFailure}
	}
	return []error{ErrComparatorFailure, e.Err}
}

func invalidOption(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOption, fmt.Sprintf(format, args...))
}
