package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeStorage          ErrorType = "storage"
	ErrorTypeBusy             ErrorType = "busy"
	ErrorTypeInvalidRequest   ErrorType = "invalid_request"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	ErrorTypeUnauthorized     ErrorType = "unauthorized"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeRateLimit        ErrorType = "rate_limited"
	ErrorTypeInternal         ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewStorageError creates an error for a failed durable read or write
func NewStorageError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewBusyError creates a storage error for a lock that could not be acquired in time
func NewBusyError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeBusy,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// NewInvalidRequestError creates an error for a malformed request
func NewInvalidRequestError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewMethodNotAllowedError creates an error for a wrong HTTP verb
func NewMethodNotAllowedError(method string) *AppError {
	return &AppError{
		Type:       ErrorTypeMethodNotAllowed,
		Message:    "Method not allowed",
		StatusCode: http.StatusMethodNotAllowed,
		Details:    map[string]interface{}{"method": method},
	}
}

// NewUnauthorizedError creates a new authentication error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// IsStorageError reports whether err is a storage failure, busy conditions included
func IsStorageError(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == ErrorTypeStorage || appErr.Type == ErrorTypeBusy
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == errorType
}

// From converts any error into an AppError, wrapping unknown errors as internal
func From(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error", err)
}

// ErrorResponse is the JSON error envelope returned to clients
type ErrorResponse struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error"`
	ErrorType ErrorType              `json:"error_type"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}
