package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Loom error code.
type ErrorCode string

const (
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"          // 400
	ErrIndexOutOfRange        ErrorCode = "INDEX_OUT_OF_RANGE"       // 400
	ErrFileNotFound           ErrorCode = "FILE_NOT_FOUND"           // 404
	ErrBusy                   ErrorCode = "BUSY"                     // 409
	ErrConfigurationMissing   ErrorCode = "CONFIGURATION_MISSING"    // 412
	ErrMalformedReferenceData ErrorCode = "MALFORMED_REFERENCE_DATA" // 422
	ErrCancelled              ErrorCode = "CANCELLED"                // 499
	ErrPersistenceFailure     ErrorCode = "PERSISTENCE_FAILURE"      // 500
	ErrInternal               ErrorCode = "INTERNAL"                 // 500
	ErrBackendFailure         ErrorCode = "BACKEND_FAILURE"          // 502
)

// LoomError represents a structured error with code, status, and details.
type LoomError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *LoomError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LoomError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LoomError {
	return &LoomError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewIndexOutOfRange creates a 400 error for a chapter index outside [0, total).
func NewIndexOutOfRange(index, total int) *LoomError {
	return &LoomError{
		Code:    ErrIndexOutOfRange,
		Status:  400,
		Message: fmt.Sprintf("chapter index %d out of range [0, %d)", index, total),
		Details: map[string]any{"index": index, "total": total},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *LoomError {
	return &LoomError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewBusy creates a 409 error when a generation job is already running.
func NewBusy(jobID string) *LoomError {
	return &LoomError{
		Code:    ErrBusy,
		Status:  409,
		Message: "a generation job is already running",
		Details: map[string]any{"job_id": jobID},
	}
}

// NewConfigurationMissing creates a 412 error for absent required configuration,
// such as an empty credential pool.
func NewConfigurationMissing(what string) *LoomError {
	return &LoomError{
		Code:    ErrConfigurationMissing,
		Status:  412,
		Message: fmt.Sprintf("%s missing", what),
		Details: map[string]any{"missing": what},
	}
}

// NewMalformedReferenceData creates a 422 error for a reference document that failed to parse.
func NewMalformedReferenceData(name string, err error) *LoomError {
	return &LoomError{
		Code:    ErrMalformedReferenceData,
		Status:  422,
		Message: fmt.Sprintf("malformed reference document: %s", name),
		Details: map[string]any{"document": name},
		Err:     err,
	}
}

// NewCancelled creates a 499 error when an operation is cancelled.
func NewCancelled(op string) *LoomError {
	return &LoomError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewPersistenceFailure creates a 500 error when the draft store cannot be written.
func NewPersistenceFailure(path string, err error) *LoomError {
	msg := "failed to persist drafts"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &LoomError{
		Code:    ErrPersistenceFailure,
		Status:  500,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewBackendFailure creates a 502 error for any failure of the generation backend.
func NewBackendFailure(err error) *LoomError {
	msg := "generation backend failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &LoomError{
		Code:    ErrBackendFailure,
		Status:  502,
		Message: msg,
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LoomError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LoomError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if an error is, or wraps, a LoomError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LoomError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}

// CodeOf returns the code of a LoomError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var lErr *LoomError
	if stderrors.As(err, &lErr) {
		return lErr.Code
	}
	return ErrInternal
}
