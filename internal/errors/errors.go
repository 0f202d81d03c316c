// Package errors provides structured error handling for riskscan operations.
// It defines error codes, typed error structs, and utilities for creating
// and classifying errors across the scan orchestration pipeline.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Scan execution errors.
	CodeTargetInvalid   ErrorCode = "TARGET_INVALID"
	CodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	CodeParseFailed     ErrorCode = "PARSE_FAILED"

	// Store errors.
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeStoreQuery       ErrorCode = "STORE_QUERY"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeConflict         ErrorCode = "CONFLICT"

	// Identity errors.
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
)

// ScanError represents an error that occurred during scan operations.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// StoreError represents document store errors.
type StoreError struct {
	Code       ErrorCode
	Message    string
	Collection string
	DocumentID string
	Cause      error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("[%s] %s (collection: %s)", e.Code, e.Message, e.Collection)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new store error.
func NewStoreError(code ErrorCode, message string) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
	}
}

// WrapStoreError wraps an existing error as a store error.
func WrapStoreError(code ErrorCode, message string, err error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// ValidationError represents a target or request validation failure.
// The message is surfaced to the caller verbatim.
type ValidationError struct {
	Message string
	Field   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", CodeValidation, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", CodeValidation, e.Message)
}

// NewValidationError creates a validation error with a caller-facing message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// NewFieldValidationError creates a validation error for a specific field.
func NewFieldValidationError(message, field string) *ValidationError {
	return &ValidationError{Message: message, Field: field}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CodeValidation
	}
	return CodeUnknown
}

// IsNotFound reports whether the error indicates a missing document or an
// ownership mismatch. The two are deliberately indistinguishable.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsValidation reports whether the error is a validation failure.
func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

// IsFatal determines if an error indicates a condition that should stop
// scan processing entirely rather than fail a single attempt.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeToolUnavailable, CodeConfiguration:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target, reason string) *ScanError {
	return NewScanErrorWithTarget(CodeTargetInvalid, reason, target)
}

// ErrScanTimeout creates an error for scan timeouts.
func ErrScanTimeout(target string) *ScanError {
	return NewScanErrorWithTarget(CodeTimeout, "scan operation timed out", target)
}

// ErrToolUnavailable creates an error for a missing scanner binary.
func ErrToolUnavailable(binary string) *ScanError {
	return NewScanError(CodeToolUnavailable, fmt.Sprintf("scanner binary %q not found", binary))
}

// ErrScanNotFound creates a not-found error for scan lookups. Ownership
// mismatches use the same error so existence is never disclosed.
func ErrScanNotFound(id string) *StoreError {
	return &StoreError{
		Code:       CodeNotFound,
		Message:    "scan not found",
		DocumentID: id,
	}
}

// ErrDocumentNotFound creates a not-found error for an arbitrary document.
func ErrDocumentNotFound(collection, id string) *StoreError {
	return &StoreError{
		Code:       CodeNotFound,
		Message:    "document not found",
		Collection: collection,
		DocumentID: id,
	}
}

// ErrUnauthenticated creates an error for requests without a resolvable principal.
func ErrUnauthenticated(reason string) *ScanError {
	return NewScanError(CodeUnauthenticated, reason)
}
