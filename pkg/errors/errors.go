// Package errors provides the error types shared by the wikifeed packages.
// Every failure the ingestion core can observe is recoverable; the types here
// let callers classify a failure with errors.Is and errors.As instead of
// matching strings.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
var New = errors.New

// Is, As and Join forward to the standard library so callers can use a single import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Sentinel errors
var (
	// ErrConnection indicates the event stream could not be reached or was lost
	ErrConnection = errors.New("stream connection failed")

	// ErrMalformedPayload indicates a stream record could not be normalized
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrDelivery indicates a subscriber's delivery callback failed
	ErrDelivery = errors.New("delivery failed")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")
)

// ConnectionError describes a failed or lost stream connection.
type ConnectionError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream %s returned status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("stream %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("stream %s: connection failed", e.URL)
}

// Unwrap implements errors.Unwrap
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(url string, statusCode int, err error) *ConnectionError {
	return &ConnectionError{URL: url, StatusCode: statusCode, Err: err}
}

// ParseReason classifies why a record was rejected.
type ParseReason string

const (
	ReasonInvalidJSON   ParseReason = "invalid_json"
	ReasonNotObject     ParseReason = "not_object"
	ReasonMissingSource ParseReason = "missing_source"
)

// ParseError is returned when a raw record cannot become a change event.
type ParseError struct {
	Reason ParseReason
	Err    error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed payload (%s)", e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// NewParseError creates a new ParseError
func NewParseError(reason ParseReason, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

// DeliveryError records a delivery failure for one subscriber.
type DeliveryError struct {
	SubscriberID string
	Err          error
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.SubscriberID, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(subscriberID string, err error) *DeliveryError {
	return &DeliveryError{SubscriberID: subscriberID, Err: err}
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}
