package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the class of failure an operation ran into
type ErrorType string

const (
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeParsing       ErrorType = "parsing"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeServerError   ErrorType = "server_error"
	ErrorTypeClientError   ErrorType = "client_error"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeSerialization ErrorType = "serialization"
	ErrorTypeCheckpoint    ErrorType = "checkpoint"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error is a typed failure raised by the source client, the sink or the
// checkpoint store.
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Code    int
	// RetryAfter is the server-directed wait carried by rate-limit errors.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Type) + " error"
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error for the given operation
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap creates a typed error around a lower level cause
func Wrap(t ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown when err is not typed
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed error of the given type
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// RetryAfterOf extracts the server-directed wait from a rate-limit error
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Type == ErrorTypeRateLimit {
		return e.RetryAfter, true
	}
	return 0, false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeStorage:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeClientError,
		ErrorTypeSerialization, ErrorTypeCheckpoint:
		return false
	default:
		return false
	}
}

// FromStatus maps a non-2xx HTTP status to a typed error
func FromStatus(op string, statusCode int, retryAfter time.Duration) *Error {
	e := &Error{
		Op:      op,
		Code:    statusCode,
		Message: http.StatusText(statusCode),
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
		e.RetryAfter = retryAfter
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Type = ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
	case statusCode == http.StatusRequestTimeout:
		e.Type = ErrorTypeNetwork
	case statusCode >= 500:
		e.Type = ErrorTypeServerError
	case statusCode >= 400:
		e.Type = ErrorTypeClientError
	default:
		e.Type = ErrorTypeUnknown
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("unexpected status code: %d", statusCode)
	}
	return e
}
