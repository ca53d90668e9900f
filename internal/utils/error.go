package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"deltaframe/internal/delta"
	"deltaframe/internal/predicate"
	"deltaframe/internal/storage"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeRequestTimeout     = "REQUEST_TIMEOUT"

	// Catalog errors
	ErrCodeCatalogError  = "CATALOG_ERROR"
	ErrCodeTableNotFound = "TABLE_NOT_FOUND"
	ErrCodeTableExists   = "TABLE_EXISTS"

	// Table resolution errors
	ErrCodeArtifactNotFound    = "DELTA_ARTIFACT_NOT_FOUND"
	ErrCodeVersionOutOfRange   = "VERSION_OUT_OF_RANGE"
	ErrCodeEmptyTable          = "EMPTY_TABLE"
	ErrCodeUnknownColumn       = "UNKNOWN_COLUMN"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeUnsupportedProtocol = "UNSUPPORTED_PROTOCOL"
	ErrCodeCorruptLog          = "CORRUPT_LOG"
	ErrCodeStorageError        = "STORAGE_ERROR"
	ErrCodeUnsupportedScheme   = "UNSUPPORTED_SCHEME"

	// Authentication errors
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeInvalidToken = "INVALID_TOKEN"

	// Validation error codes
	ErrCodeInvalidJSON       = "INVALID_JSON"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,
	ErrCodeRequestTimeout:     http.StatusRequestTimeout,

	ErrCodeCatalogError:  http.StatusInternalServerError,
	ErrCodeTableNotFound: http.StatusNotFound,
	ErrCodeTableExists:   http.StatusConflict,

	ErrCodeArtifactNotFound:    http.StatusNotFound,
	ErrCodeVersionOutOfRange:   http.StatusBadRequest,
	ErrCodeEmptyTable:          http.StatusUnprocessableEntity,
	ErrCodeUnknownColumn:       http.StatusBadRequest,
	ErrCodeInvalidFilter:       http.StatusBadRequest,
	ErrCodeUnsupportedProtocol: http.StatusNotImplemented,
	ErrCodeCorruptLog:          http.StatusUnprocessableEntity,
	ErrCodeStorageError:        http.StatusBadGateway,
	ErrCodeUnsupportedScheme:   http.StatusBadRequest,

	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeInvalidToken: http.StatusUnauthorized,

	ErrCodeInvalidJSON:       http.StatusBadRequest,
	ErrCodeInvalidParameters: http.StatusBadRequest,
}

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

// WithDetails sets the error details
func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}

	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

// getDefaultMessage returns a default message for error codes
func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeForbidden:          "Access forbidden",
		ErrCodeNotFound:           "Resource not found",
		ErrCodeConflict:           "Resource conflict",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",
		ErrCodeRequestTimeout:     "Request cancelled or timed out",

		ErrCodeCatalogError:  "Catalog error",
		ErrCodeTableNotFound: "Table not found",
		ErrCodeTableExists:   "Table already exists",

		ErrCodeArtifactNotFound:    "Delta log artifact not found",
		ErrCodeVersionOutOfRange:   "Version is not available",
		ErrCodeEmptyTable:          "Table has no data files",
		ErrCodeUnknownColumn:       "Unknown column",
		ErrCodeInvalidFilter:       "Invalid filter",
		ErrCodeUnsupportedProtocol: "Unsupported Delta protocol",
		ErrCodeCorruptLog:          "Delta log cannot be replayed",
		ErrCodeStorageError:        "Storage backend error",
		ErrCodeUnsupportedScheme:   "Unsupported table location scheme",

		ErrCodeTokenExpired: "Token expired",
		ErrCodeInvalidToken: "Invalid token",

		ErrCodeInvalidJSON:       "Invalid JSON format",
		ErrCodeInvalidParameters: "Invalid parameters",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

// Convenience functions for common error types
func NewCatalogError(cause error, details string) *AppError {
	return NewErrorBuilder(ErrCodeCatalogError).
		WithCause(cause).
		WithDetails(details).
		Build()
}

func NewNotFoundError(resource string) *AppError {
	return NewErrorBuilder(ErrCodeNotFound).
		WithMessage(fmt.Sprintf("%s not found", resource)).
		Build()
}

func NewAuthorizationError(message string) *AppError {
	return NewErrorBuilder(ErrCodeForbidden).
		WithMessage(message).
		Build()
}

// FromResolveError translates table resolution errors into AppErrors.
// Errors that already are AppErrors pass through.
func FromResolveError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	code := ErrCodeInternalError
	var rangeErr *delta.RangeError
	switch {
	case errors.As(err, &rangeErr):
		code = ErrCodeVersionOutOfRange
	case delta.IsNotFound(err):
		code = ErrCodeArtifactNotFound
	case delta.IsEmptySource(err):
		code = ErrCodeEmptyTable
	case errors.Is(err, delta.ErrUnknownColumn):
		code = ErrCodeUnknownColumn
	case errors.Is(err, predicate.ErrInvalidFilter):
		code = ErrCodeInvalidFilter
	case errors.Is(err, delta.ErrInvalidOptions):
		code = ErrCodeInvalidParameters
	case errors.Is(err, delta.ErrUnsupportedProtocol):
		code = ErrCodeUnsupportedProtocol
	case errors.Is(err, delta.ErrCorruptLog):
		code = ErrCodeCorruptLog
	case errors.Is(err, storage.ErrUnsupportedScheme):
		code = ErrCodeUnsupportedScheme
	case errors.Is(err, storage.ErrObjectNotFound):
		code = ErrCodeArtifactNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeRequestTimeout
	}

	builder := NewErrorBuilder(code).WithDetails(err.Error()).WithCause(err)
	if code == ErrCodeInternalError {
		// internal causes are logged, not returned to the caller
		builder = NewErrorBuilder(code).WithCause(err)
	}
	return builder.Build()
}

// IsErrorType checks if an error matches a specific error code
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}
