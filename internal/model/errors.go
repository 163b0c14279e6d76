package model

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed caller input. It names the specific
// constraint violated so the caller can fix the request; it is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports a missing brain or insight. Terminal; surfaced as-is.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError reports an illegal state transition or an operation rejected
// because of the brain's current status. LegalTargets enumerates the
// transitions that would have been accepted, so the caller can recover.
type ConflictError struct {
	Reason       string
	LegalTargets []BrainStatus
}

func (e *ConflictError) Error() string {
	if len(e.LegalTargets) == 0 {
		return e.Reason
	}
	targets := make([]string, len(e.LegalTargets))
	for i, t := range e.LegalTargets {
		targets[i] = string(t)
	}
	return fmt.Sprintf("%s (valid transitions: %s)", e.Reason, strings.Join(targets, ", "))
}

// PreconditionError reports a missing precondition, e.g. deleting a brain
// without the confirm flag.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// EmbeddingError wraps a failure from the embedding provider. Surfaced to the
// caller as a retry-later condition; no automatic retry happens here.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StoreError wraps a failure from the vector store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
