// Package apperrors provides the structured error kinds of a tower run.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrTemplateNotFound = errors.New("job template not found")
	ErrRemote           = errors.New("remote error")
	ErrTransport        = errors.New("transport error")
	ErrConfig           = errors.New("configuration error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Status   int    // HTTP status code for remote errors
	Field    string // For configuration errors (e.g., "url", "username")
	Resource string // For not found errors (e.g., the template name)
	Op       string // Operation that failed (e.g., "tower.launch")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so both are visible to errors.Is().
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Sentinel, e.Cause}
	}
	return []error{e.Sentinel}
}

// TemplateNotFound creates an error for a job template name with no exact match.
func TemplateNotFound(name string) error {
	return &Error{
		Sentinel: ErrTemplateNotFound,
		Message:  fmt.Sprintf("job template %q not found", name),
		Resource: name,
	}
}

// Remote creates an error for an unexpected HTTP status from the service.
func Remote(op string, status int, message string) error {
	msg := fmt.Sprintf("%s: HTTP %d", op, status)
	if message != "" {
		msg += " " + message
	}
	return &Error{
		Sentinel: ErrRemote,
		Message:  msg,
		Status:   status,
		Op:       op,
	}
}

// Transport creates an error for a request that never produced a response.
func Transport(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Config creates a configuration error for a specific field.
func Config(field, message string) error {
	return &Error{
		Sentinel: ErrConfig,
		Message:  message,
		Field:    field,
	}
}

// StatusCode returns the HTTP status carried by a remote error, or 0.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && errors.Is(appErr.Sentinel, ErrRemote) {
		return appErr.Status
	}
	return 0
}
