package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. The typed errors below unwrap to one of these, so callers
// match with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrConfiguration indicates a required setting or credential is absent.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataShape indicates that fetched source data is missing a required field.
	ErrDataShape = errors.New("malformed source data")

	// ErrTransient indicates a network, timeout or quota failure of an external call.
	ErrTransient = errors.New("transient backend failure")

	// ErrInvalidStatusTransition indicates a backwards or unknown lifecycle transition.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrImmutable indicates an attempt to overwrite a write-once field.
	ErrImmutable = errors.New("field is immutable")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError reports an invalid field value.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError names the entity that was looked up and not found.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Entity, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyExistsError names an entity whose key is already taken.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// NewAlreadyExistsError creates an AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error { return ErrAlreadyExists }

// ConfigurationError reports a missing or unusable setting at construction time.
// The process must not start with one.
type ConfigurationError struct {
	Key     string
	Message string
}

// NewConfigurationError creates a ConfigurationError for the given config key.
func NewConfigurationError(key, message string) *ConfigurationError {
	return &ConfigurationError{Key: key, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// DataShapeError reports a fetched raw review with a missing or malformed field.
type DataShapeError struct {
	Source string
	Field  string
}

// NewDataShapeError creates a DataShapeError.
func NewDataShapeError(source, field string) *DataShapeError {
	return &DataShapeError{Source: source, Field: field}
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("%s record has missing or malformed field %q", e.Source, e.Field)
}

func (e *DataShapeError) Unwrap() error { return ErrDataShape }

// ExternalAPIError describes a failed call to a review source, messaging or
// publishing API.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// NewExternalAPIError creates an ExternalAPIError. StatusCode 0 means no response.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	msg := fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns Cause when set. Otherwise no-response, 429 and 5xx errors
// unwrap to ErrTransient.
func (e *ExternalAPIError) Unwrap() error {
	switch {
	case e.Cause != nil:
		return e.Cause
	case e.StatusCode == 0, e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return ErrTransient
	default:
		return nil
	}
}
