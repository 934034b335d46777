package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, string-valued classification of domain failures.
type ErrorCode string

const (
	// CodeNotFound indicates a uid (or uid and version) does not resolve.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeInvalidTransition indicates a lifecycle transition is illegal from the current status.
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// CodeForbidden indicates the library forbids the mutation.
	CodeForbidden ErrorCode = "FORBIDDEN"
	// CodeBusinessRule indicates a content-level rule violation.
	CodeBusinessRule ErrorCode = "BUSINESS_RULE"
	// CodeConflict indicates an optimistic-concurrency check failed.
	CodeConflict ErrorCode = "CONFLICT"
	CodeInternal ErrorCode = "INTERNAL"
)

// HTTPStatus maps the code onto the status a transport boundary should use.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeBusinessRule:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type coded interface {
	Code() ErrorCode
}

// Code classifies err. Unrecognised and nil errors map to CodeInternal.
func Code(err error) ErrorCode {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// NotFoundError is returned when a uid, version or library cannot be resolved.
type NotFoundError struct {
	Kind   string
	UID    string
	Detail string
}

func (e NotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s not found: %s", e.Kind, e.UID, e.Detail)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.UID)
}

// Code implements coded.
func (NotFoundError) Code() ErrorCode { return CodeNotFound }

// InvalidTransitionError reports a transition attempted from a status that
// does not allow it.
type InvalidTransitionError struct {
	Transition Action
	Status     Status
	Reason     string
}

func (e InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s: %s (status %s)", e.Transition, e.Reason, e.Status)
	}
	return fmt.Sprintf("cannot %s from status %s", e.Transition, e.Status)
}

// Code implements coded.
func (InvalidTransitionError) Code() ErrorCode { return CodeInvalidTransition }

// LibraryNotEditableError reports a mutation blocked by library policy.
type LibraryNotEditableError struct {
	Library   string
	Operation Action
}

func (e LibraryNotEditableError) Error() string {
	return fmt.Sprintf("library %s is not editable: %s rejected", e.Library, e.Operation)
}

// Code implements coded.
func (LibraryNotEditableError) Code() ErrorCode { return CodeForbidden }

// BusinessLogicError reports a content-level rule violation.
type BusinessLogicError struct {
	Rule    string
	Message string
	Err     error
}

func (e BusinessLogicError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s", e.Rule, msg)
	}
	return msg
}

func (e BusinessLogicError) Unwrap() error { return e.Err }

// Code implements coded.
func (BusinessLogicError) Code() ErrorCode { return CodeBusinessRule }

// ConcurrentModificationError is returned when the persisted current version
// no longer matches the snapshot a writer started from.
type ConcurrentModificationError struct {
	Kind     string
	UID      string
	Expected int64
	Actual   int64
}

func (e ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected revision %d, found %d)", e.Kind, e.UID, e.Expected, e.Actual)
}

// Code implements coded.
func (ConcurrentModificationError) Code() ErrorCode { return CodeConflict }
