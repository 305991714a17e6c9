package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")
	ErrUnavailable  = errors.New("capability unavailable")
	ErrMalformed    = errors.New("malformed document")
	ErrPersistence  = errors.New("persistence failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// FailureKind partitions inference failures by how callers must react:
// unavailable disables the capability for the rest of a run, transient is
// retried with backoff, malformed is fatal for the document only.
type FailureKind string

const (
	FailureUnavailable FailureKind = "unavailable"
	FailureTransient   FailureKind = "transient"
	FailureMalformed   FailureKind = "malformed"
)

// InferenceError is the only failure shape inference capabilities may surface;
// provider-specific errors stay behind it.
type InferenceError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func NewInferenceError(kind FailureKind, op string, err error) *InferenceError {
	return &InferenceError{Kind: kind, Op: op, Err: err}
}

func (e *InferenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Is maps failure kinds onto the sentinel errors so IsKind works across the
// inference boundary.
func (e *InferenceError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == FailureUnavailable
	case ErrTemporary:
		return e.Kind == FailureTransient
	case ErrMalformed:
		return e.Kind == FailureMalformed
	default:
		return false
	}
}

// InferenceFailureKind reports the kind carried by err, if any.
func InferenceFailureKind(err error) (FailureKind, bool) {
	var infErr *InferenceError
	if errors.As(err, &infErr) {
		return infErr.Kind, true
	}
	return "", false
}
