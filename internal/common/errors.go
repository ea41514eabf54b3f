package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError convert an AppError without losing its code.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(CodeOf(e), e.Error())
}

// Extraction and matching error taxonomy.
var (
	ErrRateLimited             = errors.New("rate limited")
	ErrTransport               = errors.New("transport failure")
	ErrMalformedResponse       = errors.New("malformed response")
	ErrCostCapExceeded         = errors.New("cost cap exceeded")
	ErrCatalogUnavailable      = errors.New("catalog unavailable")
	ErrPatternStoreUnavailable = errors.New("pattern store unavailable")
	ErrNoMethods               = errors.New("no extraction methods configured")
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf maps an error onto the closest gRPC status code.
func CodeOf(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, ErrNoMethods):
		return codes.FailedPrecondition
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrCostCapExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, ErrTransport), errors.Is(err, ErrPatternStoreUnavailable), errors.Is(err, ErrCatalogUnavailable):
		return codes.Unavailable
	case errors.Is(err, ErrMalformedResponse):
		return codes.DataLoss
	default:
		return codes.Internal
	}
}
