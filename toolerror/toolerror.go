// Package toolerror provides a structured error type for tool invocation
// failures. ToolError preserves error chains (errors.Is/As via Unwrap) and
// classifies failures so the Agent Node and Approval Middleware can decide
// whether a failure is worth retrying or must be surfaced to the user
// verbatim.
package toolerror

import (
	"errors"
	"fmt"
)

// Reason classifies why a tool call failed, mirroring the retry-hint
// vocabulary surfaced to the planning loop.
type Reason string

const (
	// ReasonUnknown is the zero value: no classification was attempted.
	ReasonUnknown Reason = ""
	// ReasonInvalidArguments means the tool rejected its arguments outright
	// (e.g. failed schema validation) and retrying with the same arguments
	// cannot succeed.
	ReasonInvalidArguments Reason = "invalid_arguments"
	// ReasonMissingFields means argument decoding failed because required
	// fields were absent; a corrected call may succeed.
	ReasonMissingFields Reason = "missing_fields"
	// ReasonTransient means the failure is believed to be temporary (timeout,
	// rate limit, upstream unavailability) and retrying the same call later
	// may succeed.
	ReasonTransient Reason = "transient"
	// ReasonDenied means a human rejected the call via Approval Middleware;
	// it is never retryable.
	ReasonDenied Reason = "denied"
)

// Retryable reports whether a failure with this Reason is worth attempting
// again without operator intervention.
func (r Reason) Retryable() bool {
	return r == ReasonTransient
}

// ToolError represents a structured tool failure that preserves message and
// causal context while implementing the standard error interface. Errors may
// be chained via Cause to retain diagnostics across retries and handoffs.
type ToolError struct {
	Message string
	Reason  Reason
	Cause   *ToolError
}

// New constructs a ToolError with the provided message and no classification.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// Classified constructs a ToolError with an explicit Reason.
func Classified(message string, reason Reason) *ToolError {
	te := New(message)
	te.Reason = reason
	return te
}

// NewWithCause constructs a ToolError wrapping an underlying error. The cause
// is converted into a ToolError chain so classification and message survive
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain, preserving an
// existing chain if err already wraps one.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as an
// unclassified ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether e (or, absent an explicit reason, its deepest
// classified cause) should be retried automatically.
func (e *ToolError) Retryable() bool {
	for cur := e; cur != nil; cur = cur.Cause {
		if cur.Reason != ReasonUnknown {
			return cur.Reason.Retryable()
		}
	}
	return false
}

// Denied constructs a ToolError classified ReasonDenied, for a failure that
// originates from a human rejection via Approval Middleware (spec.md §4.4).
func Denied(message string) *ToolError {
	return Classified(message, ReasonDenied)
}
