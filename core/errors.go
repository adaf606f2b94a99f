package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports input that breaks a business rule. Nothing has been written when it is returned.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, fe := range err.Fields {
		msgs = append(msgs, fe.Field+": "+fe.Error)
	}
	return strings.Join(msgs, "; ")
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Entity, err.ID)
}

// ConflictError reports an operation attempted on an entity that is not in a state allowing it.
type ConflictError struct {
	Entity string
	ID     string
	Status string
	Op     string
}

func NewConflictError(entity, id, status, op string) error {
	return &ConflictError{Entity: entity, ID: id, Status: status, Op: op}
}

func (err ConflictError) Error() string {
	return fmt.Sprintf("cannot %s %s %q: current state is %q", err.Op, err.Entity, err.ID, err.Status)
}

// InvalidRequestError reports a malformed request rejected before any computation.
type InvalidRequestError struct {
	Reason string
}

func NewInvalidRequestError(reason string) error {
	return &InvalidRequestError{Reason: reason}
}

func (err InvalidRequestError) Error() string {
	return "invalid request: " + err.Reason
}

func IsValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsInvalidRequest(err error) bool {
	_, ok := errors.Cause(err).(*InvalidRequestError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
