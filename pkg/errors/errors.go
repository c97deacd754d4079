package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeMissingTenant ErrorType = "MISSING_TENANT"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeLocalStore    ErrorType = "LOCAL_STORE"
	ErrorTypeInternal      ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewMissingTenant reports that no shop could be resolved for the request.
func NewMissingTenant() error {
	return &AppError{
		Type:    ErrorTypeMissingTenant,
		Message: "Shop parameter is required",
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewLocalStore wraps a failure of the local page store.
func NewLocalStore(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeLocalStore,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsMissingTenant checks if an error reports an unresolved shop
func IsMissingTenant(err error) bool {
	return isType(err, ErrorTypeMissingTenant)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsLocalStore checks if an error originated in the local store
func IsLocalStore(err error) bool {
	return isType(err, ErrorTypeLocalStore)
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}
