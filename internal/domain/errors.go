package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeRead              ErrorType = "read"
	ErrorTypeTransport         ErrorType = "transport"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeConfig            ErrorType = "config"
	ErrorTypeValidation        ErrorType = "validation"
)

// ErrProcessingInFlight is returned when an upload arrives while the session
// is still processing the previous one.
var ErrProcessingInFlight = errors.New("a drawing is already being processed")

// UserErrorMessage is the only failure text ever shown to the user.
const UserErrorMessage = "Failed to process the drawing. The AI model might be unable to interpret this file. Please try another one."

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ReadFailure(message string, err error) *DomainError {
	return NewError(ErrorTypeRead, message, err)
}

func TransportFailure(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func MalformedResponse(message string, err error) *DomainError {
	return NewError(ErrorTypeMalformedResponse, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

// TypeOf returns the type of the outermost DomainError in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries a DomainError of the given type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
