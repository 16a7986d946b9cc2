package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnsupportedFormat ErrorType = "unsupported_format"
	ErrorTypePasswordProtected ErrorType = "password_protected"
	ErrorTypeWrongPassword     ErrorType = "wrong_password"
	ErrorTypeProcessing        ErrorType = "processing"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeStorage           ErrorType = "storage"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeRateLimited       ErrorType = "rate_limited"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		Details:    detail,
		StatusCode: http.StatusBadRequest,
	}
}

// NewUnsupportedFormatError is a validation failure about an archive format or option.
func NewUnsupportedFormatError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnsupportedFormat,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewPasswordProtectedError reports an encrypted archive opened without a password.
func NewPasswordProtectedError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePasswordProtected,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewWrongPasswordError reports a password that failed to decrypt an archive.
func NewWrongPasswordError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeWrongPassword,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
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

// NewStorageError wraps a failure of the object store, catalog, job store or queue.
func NewStorageError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewRateLimitedError rejects a caller that is submitting too fast.
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsValidation reports validation failures, unsupported formats included.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation) || IsType(err, ErrorTypeUnsupportedFormat)
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// TypeOf returns the error's type, internal when err is not an AppError.
func TypeOf(err error) ErrorType {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}
