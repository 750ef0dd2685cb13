package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON indicates the registry document failed to parse
	ErrInvalidJSON = errors.New("invalid JSON syntax")

	// ErrInvalidYAML indicates the settings overlay failed to parse
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrSchemaViolation indicates the registry document does not conform to the published schema
	ErrSchemaViolation = errors.New("registry schema violation")

	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrVariantNotFound indicates a variant id was not found in the registry
	ErrVariantNotFound = errors.New("variant not found")

	// ErrServiceNotFound indicates a service was not found in the registry
	ErrServiceNotFound = errors.New("service not found")

	// ErrMissingRequiredField indicates a required field is missing
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has an invalid value
	ErrInvalidValue = errors.New("invalid field value")
)

// ValidationError wraps configuration validation errors with context
type ValidationError struct {
	Component string // Component being validated (settings, service, variant)
	ID        string // ID of the component
	Field     string // Field name (optional)
	Err       error  // Underlying error
}

// Error returns formatted error message
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s '%s': field '%s': %v", e.Component, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("%s '%s': %v", e.Component, e.ID, e.Err)
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(component, id, field string, err error) *ValidationError {
	return &ValidationError{
		Component: component,
		ID:        id,
		Field:     field,
		Err:       err,
	}
}

// LoadError wraps configuration loading errors with source context
type LoadError struct {
	Source string // File path or "builtin"
	Err    error  // Underlying error
}

// Error returns formatted error message
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error
func NewLoadError(source string, err error) *LoadError {
	return &LoadError{
		Source: source,
		Err:    err,
	}
}
