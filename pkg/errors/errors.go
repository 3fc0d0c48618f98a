package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	CodeInvalidSession        ErrorCode = "INVALID_SESSION"
	CodeTransport             ErrorCode = "TRANSPORT"
	CodeNegotiation           ErrorCode = "NEGOTIATION"
	CodeMediaAcquisition      ErrorCode = "MEDIA_ACQUISITION"
	CodeReconciliationTimeout ErrorCode = "RECONCILIATION_TIMEOUT"
	CodeNotAllowed            ErrorCode = "NOT_ALLOWED"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeInternal              ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: statusFor(code),
		Context:    make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an application error
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: statusFor(code),
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func statusFor(code ErrorCode) int {
	switch code {
	case CodeInvalidSession, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotAllowed:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransport, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeReconciliationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors
func NewInvalidSession(message string) *AppError {
	return New(CodeInvalidSession, message)
}

func NewTransport(operation string, cause error) *AppError {
	return Wrap(cause, CodeTransport, operation)
}

func NewNegotiation(connectionID string, cause error) *AppError {
	return Wrap(cause, CodeNegotiation, "peer negotiation failed").
		WithContext("connection_id", connectionID)
}

func NewMediaAcquisition(cause error) *AppError {
	return Wrap(cause, CodeMediaAcquisition, "local media acquisition failed")
}

func NewReconciliationTimeout(connectionID string) *AppError {
	return New(CodeReconciliationTimeout, "roster entry never arrived for offer").
		WithContext("connection_id", connectionID)
}

func NewNotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewInvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	type unwrapper interface {
		Unwrap() error
	}

	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}

	return nil
}
