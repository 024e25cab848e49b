package errors

import (
	"errors"
	"fmt"
)

// Code identifies a category of failure surfaced by the session core
// and its collaborators.
type Code string

const (
	// CodeNotFound indicates a session, scope, order, customer, or
	// conversation lookup failed.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidArgument indicates an empty or malformed identifier was
	// passed to a registry operation.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeInvariantViolation indicates a duplicate session id on insert or
	// a removal race. Treated as a defect, never retried.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	// CodeServiceUnavailable indicates a collaborator (conversation sink,
	// order store) is temporarily down.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	// CodeContextCanceled indicates the operation was canceled.
	CodeContextCanceled Code = "CONTEXT_CANCELED"
	// CodeTimeout indicates the operation timed out.
	CodeTimeout Code = "TIMEOUT"
	// CodeRateLimitExceeded indicates a per-key rate limit was hit.
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	// CodeUnauthorized indicates authentication failure.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeLLMUnavailable indicates the AI provider is not reachable.
	CodeLLMUnavailable Code = "LLM_UNAVAILABLE"
)

// Error is a coded error carrying optional structured context.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// InvariantViolation creates an invariant violation error.
func InvariantViolation(msg string) *Error {
	return &Error{Code: CodeInvariantViolation, Message: msg}
}

// ServiceUnavailable creates a service unavailable error.
func ServiceUnavailable(msg string, cause error) *Error {
	return &Error{Code: CodeServiceUnavailable, Message: msg, Cause: cause}
}

// ContextCanceled creates a canceled error.
func ContextCanceled(cause error) *Error {
	return &Error{Code: CodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(msg string) *Error {
	return &Error{Code: CodeTimeout, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *Error {
	return &Error{Code: CodeRateLimitExceeded, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// LLMUnavailable creates an LLM unavailable error.
func LLMUnavailable(msg string, cause error) *Error {
	return &Error{Code: CodeLLMUnavailable, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err (or any error in its chain) carries the
// given code.
func IsCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf extracts the code from err, returning defaultCode when err is
// not a coded error.
func CodeOf(err error, defaultCode Code) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return defaultCode
}
