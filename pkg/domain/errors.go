// Package domain holds the error vocabulary shared by every aggregate and layer.
package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. Callers match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExternalService     = errors.New("external service failure")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
)

// DomainError wraps a sentinel with a human message and optional field-level detail.
type DomainError struct {
	Err     error
	Message string
	Fields  map[string]string
}

func (e *DomainError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewNotFoundError reports that an entity id did not resolve.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Err: ErrNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewValidationError reports a single malformed input.
func NewValidationError(field, reason string) *DomainError {
	return &DomainError{
		Err:     ErrValidation,
		Message: "validation failed",
		Fields:  map[string]string{field: reason},
	}
}

// NewValidationErrors reports several malformed inputs at once.
func NewValidationErrors(fields map[string]string) *DomainError {
	return &DomainError{Err: ErrValidation, Message: "validation failed", Fields: fields}
}

// NewInvalidStateError reports an operation that is not allowed in the current state.
func NewInvalidStateError(current, target string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidState,
		Message: fmt.Sprintf("cannot move from %q to %q", current, target),
	}
}

// NewInvalidTransitionError reports a state machine edge that does not exist.
func NewInvalidTransitionError(entity, from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidTransition,
		Message: fmt.Sprintf("%s cannot transition from %s to %s", entity, from, to),
	}
}

func NewSlotConflictError(message string) *DomainError {
	return &DomainError{Err: ErrSlotConflict, Message: message}
}

func NewInsufficientBalanceError(requested, available int64) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientBalance,
		Message: fmt.Sprintf("requested %d exceeds available balance %d", requested, available),
	}
}

// NewExternalServiceError wraps a failure from a gateway or provider call.
func NewExternalServiceError(service string, cause error) *DomainError {
	msg := service + " call failed"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &DomainError{Err: ErrExternalService, Message: msg}
}

// NewPaymentDeclinedError reports a charge the gateway refused. The caller may retry with another method.
func NewPaymentDeclinedError(reason string) *DomainError {
	return &DomainError{Err: ErrPaymentDeclined, Message: "payment declined: " + reason}
}

func NewConflictError(message string) *DomainError {
	return &DomainError{Err: ErrConflict, Message: message}
}

func NewForbiddenError(message string) *DomainError {
	return &DomainError{Err: ErrForbidden, Message: message}
}

func NewUnauthorizedError(message string) *DomainError {
	return &DomainError{Err: ErrUnauthorized, Message: message}
}
