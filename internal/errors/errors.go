package errors

import (
	"fmt"
)

// AgentError is the structured error type for dtagent.
// It provides rich context for error handling, logging, and user presentation.
type AgentError struct {
	// Code is the unique error code (e.g., "ERR_202_CORRUPT_INDEX").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AgentError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AgentError.
func (e *AgentError) Is(target error) bool {
	if t, ok := target.(*AgentError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AgentError) WithDetail(key, value string) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AgentError) WithSuggestion(suggestion string) *AgentError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AgentError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AgentError {
	return &AgentError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AgentError from an existing error.
// The error's message becomes the AgentError message.
func Wrap(code string, err error) *AgentError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AgentError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CorruptIndexError creates an unreadable-index error.
// Callers are expected to treat this as "index absent" and start empty.
func CorruptIndexError(message string, cause error) *AgentError {
	return New(ErrCodeCorruptIndex, message, cause)
}

// CredentialsError creates a missing/invalid provider credential error.
// These fail fast at construction time and are never retried.
func CredentialsError(message string) *AgentError {
	return New(ErrCodeProviderCredentials, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AgentError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AgentError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AgentError with Retryable flag set,
// or if it matches the transient-provider heuristics.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AgentError); ok {
		return ae.Retryable
	}
	return IsTransient(err)
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AgentError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AgentError.
// Returns empty string if not an AgentError.
func GetCode(err error) string {
	if ae, ok := err.(*AgentError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AgentError.
// Returns empty string if not an AgentError.
func GetCategory(err error) Category {
	if ae, ok := err.(*AgentError); ok {
		return ae.Category
	}
	return ""
}
