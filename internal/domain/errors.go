package domain

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing template, container or routing entry.
type NotFoundError struct {
	Kind string
	Name string
}

func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ValidationError is returned for input rejected before any state changes.
type ValidationError struct {
	Message string
	Err     error
}

func NewValidationError(message string, err error) *ValidationError {
	return &ValidationError{Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RuntimeError wraps a container runtime or listener failure.
type RuntimeError struct {
	Op  string
	Err error
}

func NewRuntimeError(op string, err error) *RuntimeError {
	return &RuntimeError{Op: op, Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsRuntime(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}
