package domain

import "errors"

// Domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrBlobNotFound      = errors.New("blob not found")
	ErrDuplicateKey      = errors.New("storage key already exists")
	ErrPasswordProtected = errors.New("archive is password protected")
	ErrWrongPassword     = errors.New("wrong archive password")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrJobLeased         = errors.New("job is held by another worker")
	ErrInvalidToken      = errors.New("invalid token")
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}
