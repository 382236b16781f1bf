package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ServiceError is the structured error type for frameseek.
// It carries the code, the kind derived from it, and optional key-value
// details for logging.
type ServiceError struct {
	// Code is the unique error code (e.g. "ERR_404_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Kind is the taxonomy entry derived from the code.
	Kind Kind

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with sentinel construction.
func (e *ServiceError) Is(target error) bool {
	if t, ok := target.(*ServiceError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ServiceError) WithDetail(key, value string) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with the given code and message.
// The kind is derived from the code.
func New(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Kind:    kindFromCode(code),
		Cause:   cause,
	}
}

// BadRequest creates a request-validation error. Rejected before any I/O.
func BadRequest(message string, cause error) *ServiceError {
	return New(ErrCodeBadRequest, message, cause)
}

// InvalidFilter creates an error for an unparseable object filter.
func InvalidFilter(message string, cause error) *ServiceError {
	return New(ErrCodeInvalidFilter, message, cause)
}

// NotFound creates an unknown-id error.
func NotFound(message string, cause error) *ServiceError {
	return New(ErrCodeNotFound, message, cause)
}

// Unavailable creates a downstream-failure error.
func Unavailable(message string, cause error) *ServiceError {
	return New(ErrCodeUnavailable, message, cause)
}

// Cancelled creates a deadline/disconnect error.
func Cancelled(message string, cause error) *ServiceError {
	return New(ErrCodeCancelled, message, cause)
}

// Internal creates an invariant-violation error.
func Internal(message string, cause error) *ServiceError {
	return New(ErrCodeInternal, message, cause)
}

// FromContext converts a context error into the Cancelled taxonomy entry.
// Returns nil if ctx has no error.
func FromContext(ctx context.Context) *ServiceError {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return Cancelled("request deadline elapsed", ctx.Err())
	default:
		return Cancelled("request cancelled", ctx.Err())
	}
}

// As extracts a ServiceError from the error chain.
func As(err error, target **ServiceError) bool {
	return stderrors.As(err, target)
}

// KindOf extracts the kind from an error chain.
// Non-ServiceError values map to KindInternal.
func KindOf(err error) Kind {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsNotFound reports whether the error chain contains a NotFound error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnavailable reports whether the error chain contains an Unavailable error.
func IsUnavailable(err error) bool {
	return KindOf(err) == KindUnavailable
}

// IsCancelled reports whether the error chain contains a Cancelled error.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// HTTPStatus returns the HTTP status code the boundary should report.
func HTTPStatus(err error) int {
	return statusFromKind(KindOf(err))
}
