package model

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the stable, user-visible failure categories a stage
// or worker invocation can terminate with. Kinds are never derived from a
// wrapped library error — every boundary that crosses into core code must
// translate into one of these before it propagates.
type ErrorKind string

const (
	ErrValidationFailed    ErrorKind = "validation_failed"
	ErrPrerequisiteFailed  ErrorKind = "prerequisite_failed"
	ErrNoViableRoute       ErrorKind = "no_viable_route"
	ErrInsufficientLiquid  ErrorKind = "insufficient_liquidity"
	ErrComplianceRejected  ErrorKind = "compliance_rejected"
	ErrAdapterTransient    ErrorKind = "adapter_transient"
	ErrAdapterPermanent    ErrorKind = "adapter_permanent"
	ErrStageTimeout        ErrorKind = "stage_timeout"
	ErrWorkflowTimeout     ErrorKind = "workflow_timeout"
	ErrCircuitOpen         ErrorKind = "circuit_open"
	ErrBusy                ErrorKind = "busy"
	ErrCancelled           ErrorKind = "cancelled"
	ErrAllWorkersFailed    ErrorKind = "all_workers_failed"
	ErrMissingDependency   ErrorKind = "missing_dependency"
	ErrInternal            ErrorKind = "internal"
)

// Retriable reports whether the supervisor's retry envelope should attempt
// another call after an error of this kind. validation_failed and cancelled
// must never be retried (§4.2, §7); everything else the envelope is allowed
// to retry is adapter_transient, stage_timeout and busy — the rest surface
// immediately because retrying them cannot change the outcome.
func (k ErrorKind) Retriable() bool {
	switch k {
	case ErrAdapterTransient, ErrStageTimeout, ErrBusy:
		return true
	default:
		return false
	}
}

// Error is the single typed error used across the core. Stage and kind are
// always populated once the error crosses a stage boundary; Cause holds the
// original error for logging/Unwrap, never for control flow.
type Error struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ErrCircuitOpen) style checks against bare kinds
// by comparing the Kind field, in addition to standard *Error comparison.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError constructs a typed Error.
func NewError(kind ErrorKind, stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a *Error,
// otherwise returns ErrInternal — the orchestrator never leaks a raw
// lower-level fault without a stable kind attached (§7 propagation policy).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}
