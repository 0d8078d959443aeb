// Package errs defines the error kinds the core propagates between layers.
//
// Handlers map these kinds onto HTTP status codes; the orchestrator and
// signal pipeline inspect PluginError.Retryable to decide whether a call
// is worth retrying.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input with per-field messages.
type ValidationError struct {
	Msg    string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidation creates a ValidationError with field-level details.
func NewValidation(msg string, fields map[string]string) *ValidationError {
	return &ValidationError{Msg: msg, Fields: fields}
}

// NotFoundError reports a referenced row that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for the given resource.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a uniqueness or state-machine violation.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

// NewConflict creates a ConflictError.
func NewConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// PluginError reports a failure from an external collaborator plugin.
// Retryable distinguishes transient failures from permanent ones.
type PluginError struct {
	Plugin    string
	Msg       string
	Retryable bool
	Err       error
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Msg, e.Err)
	}
	return fmt.Sprintf("plugin %s: %s", e.Plugin, e.Msg)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// NewPluginError creates a PluginError wrapping an underlying cause.
func NewPluginError(plugin, msg string, retryable bool, err error) *PluginError {
	return &PluginError{Plugin: plugin, Msg: msg, Retryable: retryable, Err: err}
}

// TimeoutError reports a bounded deadline exceeded on an external call.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline exceeded", e.Op)
}

// ForbiddenError reports an auth or role mismatch.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string {
	return e.Msg
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}

// IsRetryable reports whether err is a PluginError marked retryable or a
// TimeoutError (timeouts are always worth one more attempt).
func IsRetryable(err error) bool {
	var pe *PluginError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var te *TimeoutError
	return errors.As(err, &te)
}
