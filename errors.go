package chatrelay

import (
	"errors"
	"fmt"
)

// Error represents a chatrelay error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for relay operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a persistence operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeUnauthorized indicates a missing or invalid credential.
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// ErrCodeInvalidArgument indicates empty or malformed client input.
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"

	// ErrCodeNotFound indicates the referenced message does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeForbidden indicates the caller is not the author of the message.
	ErrCodeForbidden = "FORBIDDEN"

	// ErrCodeDelivery indicates a broker publish or local fan-out failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeResource indicates a queue declare, bind or delete failed.
	ErrCodeResource = "RESOURCE_ERROR"

	// ErrCodeSerialization indicates a malformed payload arrived from the broker.
	ErrCodeSerialization = "SERIALIZATION_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrPoolClosed is returned when work is submitted to a pool that is shutting down.
	ErrPoolClosed = &Error{
		Code:    ErrCodeConfiguration,
		Message: "worker pool is closed",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// CodeOf returns the code of the outermost *Error in err's chain,
// or an empty string if there is none.
func CodeOf(err error) string {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return ""
}

// HasCode reports whether the outermost *Error in err's chain carries code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
