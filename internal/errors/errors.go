// Package errors provides the structured error taxonomy shared by every
// alarm pipeline stage.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCategory classifies the type of error
type ErrorCategory string

const (
	// ClientError indicates the error was caused by the caller (bad event, bad input)
	ClientError ErrorCategory = "CLIENT_ERROR"
	// ServerError indicates the error was caused inside this service
	ServerError ErrorCategory = "SERVER_ERROR"
	// ExternalError indicates the error was caused by a managed AWS service
	ExternalError ErrorCategory = "EXTERNAL_ERROR"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Client errors
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeInvalidEvent     ErrorCode = "INVALID_EVENT"
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// Server errors
	CodeConfigurationLookup ErrorCode = "CONFIGURATION_LOOKUP"
	CodeInvalidConfig       ErrorCode = "INVALID_CONFIG"
	CodeInternalError       ErrorCode = "INTERNAL_ERROR"
	CodeTimeout             ErrorCode = "TIMEOUT"

	// External errors
	CodeAlarmStore           ErrorCode = "ALARM_STORE"
	CodeParameterStore       ErrorCode = "PARAMETER_STORE"
	CodePublish              ErrorCode = "PUBLISH"
	CodeDiagnosticGeneration ErrorCode = "DIAGNOSTIC_GENERATION"
	CodeSigning              ErrorCode = "SIGNING"
)

// StructuredError represents a detailed error with category, code, and recovery suggestion
type StructuredError struct {
	Code       ErrorCode     `json:"code"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`

	cause error
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Category, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StructuredError with the same code.
// This lets callers write errors.Is(err, ErrInstanceNotFound).
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToJSON converts the error to JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code ErrorCode, category ErrorCategory, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// WithCause attaches the underlying error
func (e *StructuredError) WithCause(err error) *StructuredError {
	e.cause = err
	return e
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidEvent         = New(CodeInvalidEvent, ClientError, "invalid event")
	ErrInstanceNotFound     = New(CodeInstanceNotFound, ClientError, "instance not found")
	ErrConfigurationLookup  = New(CodeConfigurationLookup, ServerError, "configuration lookup failed")
	ErrInvalidConfig        = New(CodeInvalidConfig, ServerError, "invalid configuration")
	ErrAlarmStore           = New(CodeAlarmStore, ExternalError, "alarm store failure")
	ErrParameterStore       = New(CodeParameterStore, ExternalError, "parameter store failure")
	ErrPublish              = New(CodePublish, ExternalError, "publish failure")
	ErrDiagnosticGeneration = New(CodeDiagnosticGeneration, ExternalError, "diagnostic generation failure")
	ErrSigning              = New(CodeSigning, ExternalError, "signing failure")
)

// Common error constructors

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *StructuredError {
	return New(CodeInvalidInput, ClientError, message).
		WithSuggestion("Check the input parameters and try again")
}

// NewMissingParameter creates a missing parameter error
func NewMissingParameter(param string) *StructuredError {
	return New(CodeMissingParameter, ClientError, fmt.Sprintf("Required parameter '%s' is missing", param)).
		WithSuggestion(fmt.Sprintf("Provide the '%s' parameter", param))
}

// NewInvalidEvent creates an error for an inbound event that failed to decode or validate
func NewInvalidEvent(kind string, err error) *StructuredError {
	return New(CodeInvalidEvent, ClientError, fmt.Sprintf("malformed %s event", kind)).
		WithCause(err).
		WithDetails(map[string]interface{}{"event": kind})
}

// NewInstanceNotFound creates an error for an instance id that does not resolve
func NewInstanceNotFound(instanceID string) *StructuredError {
	return New(CodeInstanceNotFound, ClientError, fmt.Sprintf("instance '%s' not found", instanceID)).
		WithDetails(map[string]interface{}{"instance_id": instanceID}).
		WithSuggestion("The instance may have been terminated before the event was processed")
}

// NewConfigurationLookup creates an error for a key missing from a static lookup table
func NewConfigurationLookup(table, key string) *StructuredError {
	return New(CodeConfigurationLookup, ServerError, fmt.Sprintf("%s has no entry for '%s'", table, key)).
		WithDetails(map[string]interface{}{"table": table, "key": key}).
		WithSuggestion("Add the instance type to the instance type catalog")
}

// NewInvalidConfig creates an error for configuration that fails validation
func NewInvalidConfig(message string) *StructuredError {
	return New(CodeInvalidConfig, ServerError, message).
		WithSuggestion("Check the alarm configuration parameters")
}

// NewAlarmStore creates an error for a failed alarm create/update/delete/describe call
func NewAlarmStore(operation string, err error) *StructuredError {
	return New(CodeAlarmStore, ExternalError, fmt.Sprintf("alarm store operation '%s' failed", operation)).
		WithCause(err).
		WithDetails(map[string]interface{}{"operation": operation})
}

// NewParameterStore creates an error for a failed parameter read or write
func NewParameterStore(name string, err error) *StructuredError {
	return New(CodeParameterStore, ExternalError, fmt.Sprintf("parameter '%s' could not be accessed", name)).
		WithCause(err).
		WithDetails(map[string]interface{}{"parameter": name})
}

// NewPublish creates an error for a failed event or notification publish
func NewPublish(target string, err error) *StructuredError {
	return New(CodePublish, ExternalError, fmt.Sprintf("publish to '%s' failed", target)).
		WithCause(err)
}

// NewDiagnosticGeneration creates a non-fatal error for a chart that could not be produced
func NewDiagnosticGeneration(metric string, err error) *StructuredError {
	return New(CodeDiagnosticGeneration, ExternalError, fmt.Sprintf("diagnostic chart for '%s' could not be generated", metric)).
		WithCause(err).
		WithDetails(map[string]interface{}{"metric": metric})
}

// NewSigning creates an error for a suppression URL that could not be signed
func NewSigning(err error) *StructuredError {
	return New(CodeSigning, ExternalError, "suppression URL could not be signed").
		WithCause(err)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternalError, ServerError, message).
		WithSuggestion("Check the operational log for details")
}

// NewTimeout creates a timeout error
func NewTimeout(operation string) *StructuredError {
	return New(CodeTimeout, ServerError, fmt.Sprintf("Operation '%s' timed out", operation)).
		WithSuggestion("Try again or adjust timeout settings")
}

// IsFatal reports whether an error must abort the current invocation.
// Diagnostic and signing failures only degrade output.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StructuredError
	if !asStructured(err, &se) {
		return true
	}
	switch se.Code {
	case CodeDiagnosticGeneration, CodeSigning:
		return false
	default:
		return true
	}
}

// CodeOf returns the code of the first StructuredError in err's chain, or
// CodeInternalError when none is present.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if asStructured(err, &se) {
		return se.Code
	}
	return CodeInternalError
}

func asStructured(err error, target **StructuredError) bool {
	return stderrors.As(err, target)
}
