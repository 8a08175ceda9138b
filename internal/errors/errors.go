package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a journal error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrMirrorWrite    ErrorCode = "MIRROR_WRITE"    // 500, recoverable: index already committed
	ErrTransaction    ErrorCode = "TRANSACTION"     // 503, nothing persisted, safe to retry
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// Error represents a structured error with code, status, and details.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Op is the coordinator or store operation that failed (e.g. "update_entry").
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOp returns a copy of e tagged with the operation name.
// An operation already set on e is kept.
func (e *Error) WithOp(op string) *Error {
	if e.Op != "" {
		return e
	}
	cp := *e
	cp.Op = op
	return &cp
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *Error {
	return &Error{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entry, version or file.
// kind is "entry", "version" or "file".
func NewNotFound(kind, id string) *Error {
	return &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewConflict creates a 409 error for an id collision.
// Ids are generated to be globally unique, so this indicates a generator defect.
func NewConflict(kind, id string) *Error {
	return &Error{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("%s already exists: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewMirrorWrite creates an error for a content mirror write that failed after
// the index transaction committed.
func NewMirrorWrite(op, path string, err error) *Error {
	msg := "mirror write failed"
	if err != nil {
		msg = fmt.Sprintf("mirror write failed for %s: %v", path, err)
	}
	return &Error{
		Code:    ErrMirrorWrite,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		Op:      op,
		Err:     err,
	}
}

// NewTransaction creates a 503 error for an atomic unit of work that failed
// before commit.
func NewTransaction(op string, err error) *Error {
	msg := "transaction failed"
	if err != nil {
		msg = fmt.Sprintf("transaction failed: %v", err)
	}
	return &Error{
		Code:    ErrTransaction,
		Status:  503,
		Message: msg,
		Op:      op,
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var jErr *Error
	if stderrors.As(err, &jErr) {
		return jErr.Code == code
	}
	return false
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var jErr *Error
	if stderrors.As(err, &jErr) {
		return jErr, true
	}
	return nil, false
}
