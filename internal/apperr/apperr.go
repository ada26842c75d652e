// Package apperr defines the domain error taxonomy. Every failure a
// caller can act on is one of these kinds; infrastructure errors are
// wrapped with %w and surface as DependencyFailure only when a primary
// operation cannot proceed without the dependency.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error category.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state_transition"
	KindAllocation   Kind = "allocation_error"
	KindValidation   Kind = "validation_error"
	KindDependency   Kind = "dependency_failure"
)

// Error is a structured domain error with a machine-readable kind and
// a human-readable message.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	wrapped error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.wrapped }

// NotFound reports a missing entity ("task", "subtask", ...).
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

// Forbidden reports that the actor's role is not authorized.
func Forbidden(required string) *Error {
	return &Error{Kind: KindForbidden, Message: required + " access required"}
}

// InvalidTransition reports a status precondition failure: the
// persisted state did not match the expected pre-state. This is the
// guard that fails the loser of a double-approval race.
func InvalidTransition(expected, actual string) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("invalid state transition: expected %q, found %q", expected, actual),
	}
}

// Allocation reports a subtask percentage sum that is not exactly 100.
func Allocation(sum float64) *Error {
	return &Error{
		Kind:    KindAllocation,
		Message: fmt.Sprintf("total percentage must equal 100%%, got %g%%", sum),
	}
}

// Validation reports a bad request field.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Dependency reports a collaborator failure (notifier, mailer,
// storage) that prevented the primary operation.
func Dependency(name string, err error) *Error {
	return &Error{
		Kind:    KindDependency,
		Message: fmt.Sprintf("%s unavailable: %v", name, err),
		wrapped: err,
	}
}

// KindOf extracts the kind of err, or "" for non-domain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a domain error to its response status. Non-domain
// errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindAllocation, KindValidation:
		return http.StatusBadRequest
	case KindDependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
