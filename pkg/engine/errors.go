// Package engine implements the provisioning orchestrator: ordered host and
// container stages driven against a marker store, with bounded retries and
// best-effort rollback of partially provisioned containers.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: package mirror timeouts, container control plane busy.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConfiguration indicates invalid or missing declared configuration.
	// Never retried; scoped to the offending container.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassEnvironmental indicates the host itself is unusable.
	// Examples: missing external tool, unwritable filesystem. Fatal to the run.
	ErrorClassEnvironmental ErrorClass = "environmental"
)

// Error is a classified provisioning error carrying stage and container context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Container is the container ID involved, if applicable.
	Container string `json:"container,omitempty"`

	// Stage is the stage ID being executed when the error occurred.
	Stage string `json:"stage,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Container != "" && e.Stage != "" {
		return fmt.Sprintf("[%s] %s (container=%s, stage=%s): %s",
			e.Class, e.Message, e.Container, e.Stage, e.unwrapMessage())
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s (stage=%s): %s", e.Class, e.Message, e.Stage, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewEnvironmentalError creates a new environmental error.
func NewEnvironmentalError(message string, err error) *Error {
	return &Error{Class: ErrorClassEnvironmental, Message: message, Err: err}
}

// WithContainer adds container context to an error.
func (e *Error) WithContainer(id string) *Error {
	e.Container = id
	return e
}

// WithStage adds stage context to an error.
func (e *Error) WithStage(stageID string) *Error {
	e.Stage = stageID
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
// Unclassified errors report false.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfiguration
	}
	return false
}

// IsEnvironmental returns true if the error is classified as environmental.
func IsEnvironmental(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassEnvironmental
	}
	return false
}

// IsPermanent returns true for errors that must never be retried.
// An unclassified error is not permanent: opaque stage actions keep the
// blind-retry behavior and are retried to the attempt cap.
func IsPermanent(err error) bool {
	return IsConfiguration(err) || IsEnvironmental(err)
}

// AsError is a convenience wrapper around errors.As for *Error targets.
func AsError(err error, target **Error) bool {
	return errors.As(err, target)
}

// Common error codes.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeToolMissing    = "TOOL_MISSING"
	ErrCodeUnwritable     = "UNWRITABLE"
	ErrCodeStageFailed    = "STAGE_FAILED"
	ErrCodeRollbackFailed = "ROLLBACK_FAILED"
	ErrCodeLockHeld       = "LOCK_HELD"
)
