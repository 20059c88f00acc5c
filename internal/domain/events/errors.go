package events

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when the grant list changed between read and write.
	ErrConflict = errors.New("conflict")
)

// NotFoundError names the missing resource: "event", "media" or "account".
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ForbiddenError is a policy denial. Mode tells strict owner-only denials apart from
// delegated ones.
type ForbiddenError struct {
	Mode   Mode
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden (%s): %s", e.Mode, e.Reason)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError reports a rejected input. Err carries the underlying cause, such as a
// *media.ValidationError or a *NotFoundError for an unknown grant subject.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invalid " + e.Field
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func eventNotFound(id string) error {
	return &NotFoundError{Resource: "event", ID: id}
}
