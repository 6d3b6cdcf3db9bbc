// Package apperr defines the error kinds the record engine reports across its
// boundary. Raw store error text stays inside; callers translate these kinds
// into transport responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFound(resource string, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsNotFound(err error) bool {
	_, ok := errors.AsType[*NotFoundError](err)
	return ok
}

type ConflictError struct {
	Fields []string
}

func (e *ConflictError) Error() string {
	if len(e.Fields) == 0 {
		return "unique constraint violated"
	}
	return fmt.Sprintf("unique constraint violated on %s", strings.Join(e.Fields, ", "))
}

func NewConflict(fields ...string) error { return &ConflictError{Fields: fields} }

func IsConflict(err error) bool {
	_, ok := errors.AsType[*ConflictError](err)
	return ok
}

// ConflictFields returns the offending field names when err is a conflict.
func ConflictFields(err error) []string {
	if e, ok := errors.AsType[*ConflictError](err); ok {
		return e.Fields
	}
	return nil
}

type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

func NewUnknownColumn(column string) error { return &UnknownColumnError{Column: column} }

func IsUnknownColumn(err error) bool {
	_, ok := errors.AsType[*UnknownColumnError](err)
	return ok
}

type UnknownOperatorError struct {
	Operator string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

func NewUnknownOperator(operator string) error { return &UnknownOperatorError{Operator: operator} }

func IsUnknownOperator(err error) bool {
	_, ok := errors.AsType[*UnknownOperatorError](err)
	return ok
}

type ForbiddenError struct {
	msg string
}

func (e *ForbiddenError) Error() string { return e.msg }

func NewForbidden(msg string) error { return &ForbiddenError{msg: msg} }

func IsForbidden(err error) bool {
	_, ok := errors.AsType[*ForbiddenError](err)
	return ok
}

// InternalError wraps an unexpected store or connectivity failure. The wrapped
// cause is for logs, not for clients.
type InternalError struct {
	err error
}

func (e *InternalError) Error() string { return "internal error" }

func (e *InternalError) Unwrap() error { return e.err }

func NewInternal(err error) error {
	if err == nil {
		return nil
	}
	return &InternalError{err: err}
}

func IsInternal(err error) bool {
	_, ok := errors.AsType[*InternalError](err)
	return ok
}
