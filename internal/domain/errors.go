package domain

import (
	"errors"
	"fmt"

	"credanchor/pkg/proofhash"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrPolicyDenied    = errors.New("policy denied")
	ErrSerialization   = proofhash.ErrSerialization
	ErrVaultWrite      = errors.New("vault write failed")
	ErrVaultRead       = errors.New("vault read failed")
	ErrAnchorSubmit    = errors.New("anchor submission failed")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
)

// ValidationError describes a rejected input. It matches ErrValidation and,
// when Err is set, the wrapped sentinel.
type ValidationError struct {
	Field      string
	Constraint string
	Err        error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Constraint)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Constraint)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field, constraint string) error {
	return &ValidationError{Field: field, Constraint: constraint}
}

func NewTooLargeError(field string, size, limit int64) error {
	return &ValidationError{
		Field:      field,
		Constraint: fmt.Sprintf("size %d exceeds limit %d", size, limit),
		Err:        ErrPayloadTooLarge,
	}
}

type CollaboratorKind string

const (
	CollaboratorUnavailable CollaboratorKind = "unavailable"
	CollaboratorTimeout     CollaboratorKind = "timeout"
	CollaboratorRejected    CollaboratorKind = "rejected"
	CollaboratorUnsupported CollaboratorKind = "unsupported"
	CollaboratorNotFound    CollaboratorKind = "not_found"
)

// CollaboratorError is the only error type that crosses the boundary of an
// external collaborator (vault, chain). Detail is for logs and must not be
// shown to clients.
type CollaboratorError struct {
	Op     string
	Kind   CollaboratorKind
	Detail string
	Err    error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func NewCollaboratorError(op string, kind CollaboratorKind, sentinel error, detail string) error {
	return &CollaboratorError{Op: op, Kind: kind, Detail: detail, Err: sentinel}
}

// CollaboratorKindOf returns the kind of a CollaboratorError anywhere in the
// chain of err.
func CollaboratorKindOf(err error) (CollaboratorKind, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
