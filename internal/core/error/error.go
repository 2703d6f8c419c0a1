package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a key does not exist.
	RedisNotFoundMessage = "record not found"
	// RedisTimeoutMessage is used when the store does not answer in time.
	RedisTimeoutMessage = "store timed out"
)

// Workflow error kinds. Stages record these on the conversation state through
// their message; transports match them with errors.Is.
var (
	ErrNoUserMessage         = errors.New("no user message found")
	ErrClassificationService = errors.New("classification service error")
	ErrNoTicketContext       = errors.New("no ticket information available")
	ErrNoAgentResponse       = errors.New("no agent response found")
	ErrAgentDiscovery        = errors.New("failed to fetch the public agent card")
	ErrMissingCredential     = errors.New("admin agent credential not available")
	ErrRunNotFound           = errors.New("run not found")
	ErrRunNotSuspended       = errors.New("run is not awaiting human review")
	ErrInvalidInput          = errors.New("invalid input")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// NotFound wraps err as a 404 with err's text as the safe message.
func NotFound(err error) *AppError {
	return New(err, http.StatusNotFound, err.Error())
}

// Conflict wraps err as a 409 with err's text as the safe message.
func Conflict(err error) *AppError {
	return New(err, http.StatusConflict, err.Error())
}

// BadRequest wraps err under ErrInvalidInput with a 400 status.
func BadRequest(format string, args ...any) *AppError {
	return New(fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...)), http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// StatusOf returns the HTTP status carried by the first AppError in the chain,
// or 500 when there is none.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns a message safe to show to API callers.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
