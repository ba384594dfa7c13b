// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ValidationError means the caller's parameters or the campaign's current
// state do not allow the requested operation. No state was changed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// TransportError means the backend was unreachable or answered with a
// server-side failure. Transient: polling tolerates it, one-shot calls
// surface it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// NotFoundError means the backend no longer knows the remote job. Safe to
// treat as "already gone".
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote job %s not found", e.JobID)
}

func NewNotFound(jobID string) error {
	return &NotFoundError{JobID: jobID}
}

// InvariantViolation is a programmer error, rejected before any remote call.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
