package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a mediasync error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrUnknownSlot    ErrorCode = "UNKNOWN_SLOT"    // 400
	ErrWrongSort      ErrorCode = "WRONG_SORT"      // 409
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// MediaError represents a structured error with code, status, and details.
type MediaError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MediaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MediaError {
	return &MediaError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an item or record that cannot be found.
func NewNotFound(what, identifier string) *MediaError {
	return &MediaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", what, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *MediaError {
	return &MediaError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewUnknownSlot creates a 400 error for a session slot name that does not exist.
func NewUnknownSlot(name string) *MediaError {
	return &MediaError{
		Code:    ErrUnknownSlot,
		Status:  400,
		Message: fmt.Sprintf("unknown session slot %q (want library, cursor, query or previous)", name),
		Details: map[string]any{"slot": name},
	}
}

// NewWrongSort creates a 409 error when a manual reorder is attempted outside the weight sort.
func NewWrongSort(active string) *MediaError {
	return &MediaError{
		Code:    ErrWrongSort,
		Status:  409,
		Message: fmt.Sprintf("manual reorder requires the weight sort (active sort: %s)", active),
		Details: map[string]any{"sort": active},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MediaError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MediaError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a MediaError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MediaError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}
