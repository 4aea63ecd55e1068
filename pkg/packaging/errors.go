package packaging

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a packaging failure for reporting and retry logic.
type ErrorClass string

const (
	// ErrorClassSyntax indicates the component source failed to parse or
	// compile. The common cause is a developer mid-edit; the next
	// watch-triggered or timer-triggered pass fixes it.
	ErrorClassSyntax ErrorClass = "syntax"

	// ErrorClassTransient indicates a temporary failure such as a locked
	// output directory or a busy build cache.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a failure that will not resolve on its
	// own, such as a missing packager binary.
	ErrorClassPermanent ErrorClass = "permanent"
)

// BuildError is a classified packaging failure with component context.
type BuildError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Component is the component path that failed, if known.
	Component string `json:"component,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s (component=%s): %s", e.Class, e.Message, e.Component, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

func (e *BuildError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// WithComponent adds component context to the error.
func (e *BuildError) WithComponent(path string) *BuildError {
	e.Component = path
	return e
}

// NewSyntaxError creates a syntax-class build error.
func NewSyntaxError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassSyntax, Message: message, Err: err}
}

// NewTransientError creates a transient build error.
func NewTransientError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a permanent build error.
func NewPermanentError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// IsSyntax returns true if the error is classified as a syntax failure.
func IsSyntax(err error) bool {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Class == ErrorClassSyntax
	}
	return false
}
