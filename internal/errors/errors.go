// Package errors defines the structured error taxonomy of the editor engine.
//
// Every failure surfaced to an operator is an *APIError carrying a stable
// ErrorCode, an HTTP status for the API layer and a human-readable message that
// doubles as notification text.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode defines specific error types.
type ErrorCode string

const (
	// ErrUnsupported is returned when the host store cannot enumerate databases.
	ErrUnsupported ErrorCode = "UNSUPPORTED"
	// ErrOpenFailed is returned when a database cannot be opened.
	ErrOpenFailed ErrorCode = "OPEN_FAILED"
	// ErrScanFailed is returned when a cursor scan fails.
	ErrScanFailed ErrorCode = "SCAN_FAILED"
	// ErrPutFailed is returned when a record cannot be written.
	ErrPutFailed ErrorCode = "PUT_FAILED"
	// ErrDeleteFailed is returned when a record cannot be deleted.
	ErrDeleteFailed ErrorCode = "DELETE_FAILED"
	// ErrInvalidFormat is returned when user supplied text is not valid JSON.
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrConflict is returned when the operation does not apply to the current view
	ErrConflict ErrorCode = "CONFLICT"
	// ErrNotConfirmed is returned when a destructive operation was not confirmed
	ErrNotConfirmed ErrorCode = "NOT_CONFIRMED"
	// ErrTimeout is returned when an awaited state transition did not complete in time
	ErrTimeout ErrorCode = "TIMEOUT"
	// ErrRateLimited is returned when a client sends too many requests
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrInternal is returned when an unexpected error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code ErrorCode) bool {
	var ews ErrorWithStatus
	if !errors.As(err, &ews) {
		return false
	}
	return ews.Code() == code
}

// CodeOf returns the code carried by err, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		return ews.Code()
	}
	return ErrInternal
}

// Host store failures.

// Unsupported is returned when the host has no database enumeration capability.
func Unsupported(feature string) *APIError {
	return NewAPIError(http.StatusNotImplemented, ErrUnsupported, fmt.Sprintf("Cannot %s (not supported by this store)", feature))
}

// Open wraps a failure to open database name.
func Open(name string, err error) *APIError {
	return NewAPIError(http.StatusBadGateway, ErrOpenFailed, "Error opening database").WithDetail("database", name).Wrap(err)
}

// Scan wraps a cursor failure in store.
func Scan(store string, err error) *APIError {
	return NewAPIError(http.StatusBadGateway, ErrScanFailed, "Error loading records with cursor").WithDetail("store", store).Wrap(err)
}

// Put wraps a write failure in store.
func Put(store string, err error) *APIError {
	return NewAPIError(http.StatusUnprocessableEntity, ErrPutFailed, "Error saving record").WithDetail("store", store).Wrap(err)
}

// Delete wraps a delete failure in store.
func Delete(store string, err error) *APIError {
	return NewAPIError(http.StatusUnprocessableEntity, ErrDeleteFailed, "Error deleting record").WithDetail("store", store).Wrap(err)
}

// InvalidFormat is returned when text does not parse as JSON.
func InvalidFormat(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrInvalidFormat, "Invalid JSON format").Wrap(err)
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// Conflict creates a 409 error for operations that do not apply to the current view.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrConflict, message)
}

// NotConfirmed creates a 409 error for a declined confirmation.
func NotConfirmed(action string) *APIError {
	return NewAPIError(http.StatusConflict, ErrNotConfirmed, fmt.Sprintf("%s was not confirmed", action))
}

// Timeout creates a 504 error for a wait that gave up.
func Timeout(waitingFor string) *APIError {
	return NewAPIError(http.StatusGatewayTimeout, ErrTimeout, fmt.Sprintf("Timed out waiting for %s", waitingFor))
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
