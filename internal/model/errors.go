package model

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by operations on an instrument whose owner has
	// already been closed.
	ErrDisposed = errors.New("instrument disposed")

	// ErrInvalidTransition is returned when an operation is not legal in the
	// instrument's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminal is returned when an instrument has already completed or
	// failed and can no longer be saved.
	ErrTerminal = errors.New("instrument is in a terminal state")

	// ErrNotFound is returned when an anchor or instrument is unknown.
	ErrNotFound = errors.New("instrument not found")
)

// ValidationError rejects editing input before anything is submitted.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SubmissionError wraps a failed create or remove call to the instrument service.
type SubmissionError struct {
	Op  string // "add" or "remove"
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s live instrument: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// RuntimeError is a server-reported failure delivered with a REMOVED event.
// Message is kept verbatim for display.
type RuntimeError struct {
	InstrumentID string
	Message      string
}

func (e *RuntimeError) Error() string { return e.Message }
