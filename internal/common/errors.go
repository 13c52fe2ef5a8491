package common

import (
	"context"
	"errors"
	"fmt"
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

// Failure taxonomy. Permanent errors are never retried; transient errors are
// retried with backoff up to the configured limit, then dead-lettered.
var (
	ErrMalformedJob = errors.New("malformed job")
	ErrExtraction   = errors.New("no usable signal extracted")
	ErrStore        = errors.New("store unavailable")
	ErrTimeout      = errors.New("operation timed out")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

// NewAppError creates an error with an explicit code and cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// MalformedJobError marks a job whose payload fails schema validation.
func MalformedJobError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrMalformedJob
	} else {
		cause = fmt.Errorf("%w: %w", ErrMalformedJob, cause)
	}
	return &AppError{Code: "MALFORMED_JOB", Message: message, Cause: cause}
}

// ExtractionError marks a resource that produced neither text nor hashes.
func ExtractionError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrExtraction
	} else {
		cause = fmt.Errorf("%w: %w", ErrExtraction, cause)
	}
	return &AppError{Code: "EXTRACTION_FAILED", Message: message, Cause: cause}
}

// StoreError marks a failed result-store operation.
func StoreError(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrStore
	} else {
		cause = fmt.Errorf("%w: %w", ErrStore, cause)
	}
	return &AppError{Code: "STORE_FAILED", Message: message, Cause: cause}
}

// IsPermanent reports whether err must not be retried (poison message).
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedJob) || errors.Is(err, ErrExtraction)
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStore) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
