package assessment

import (
	"errors"
	"fmt"
)

// Every engine failure is one of three kinds: the caller sent something the
// policy rejects (ValidationError), the caller lost an ordering/uniqueness
// race and should retry (ConflictError), or a referenced row is gone
// (NotFoundError). Prior state is never mutated on failure.

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string { return e.Op + ": lost concurrent write, retry" }

func conflict(op string) error { return &ConflictError{Op: op} }

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }

func notFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
