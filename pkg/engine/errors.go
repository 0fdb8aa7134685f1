package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed if the
	// caller tries again. The actuator itself never retries.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassRecoverable indicates an expected outcome that callers report
	// and skip, such as a value with no configured rule.
	ErrorClassRecoverable ErrorClass = "recoverable"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, unsupported value types.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes.
const (
	ErrCodeInvalidValueType = "INVALID_VALUE_TYPE"
	ErrCodeNoMatchingRule   = "NO_MATCHING_RULE"
	ErrCodeActionInvocation = "ACTION_INVOCATION_FAILED"
	ErrCodeTemplate         = "TEMPLATE_ERROR"
	ErrCodeConfig           = "CONFIG_INVALID"
	ErrCodePolicyDenied     = "POLICY_DENIED"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Entity is the controlled entity the error relates to, if any.
	Entity string `json:"entity,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Entity != "" && e.Operation != "":
		msg = fmt.Sprintf("%s (entity=%s, operation=%s)", msg, e.Entity, e.Operation)
	case e.Entity != "":
		msg = fmt.Sprintf("%s (entity=%s)", msg, e.Entity)
	case e.Operation != "":
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two engine errors are equal when class and code match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithEntity adds entity context to an error.
func (e *EngineError) WithEntity(entityID string) *EngineError {
	e.Entity = entityID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidValueType = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeInvalidValueType}
	ErrNoMatchingRule   = &EngineError{Class: ErrorClassRecoverable, Code: ErrCodeNoMatchingRule}
	ErrActionInvocation = &EngineError{Class: ErrorClassTransient, Code: ErrCodeActionInvocation}
	ErrPolicyDenied     = &EngineError{Class: ErrorClassPermanent, Code: ErrCodePolicyDenied}
)

// NewInvalidValueTypeError reports a value element outside the supported scalar types.
func NewInvalidValueTypeError(index int, value interface{}) *EngineError {
	return (&EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeInvalidValueType,
		Message: fmt.Sprintf("value %#v for slot %d must be one of: float, int, string, null", value, index),
	}).WithDetail("slot", index)
}

// NewNoMatchingRuleError reports that no rule is configured for a tuple.
func NewNoMatchingRuleError(value Tuple) *EngineError {
	return &EngineError{
		Class:   ErrorClassRecoverable,
		Code:    ErrCodeNoMatchingRule,
		Message: fmt.Sprintf("no configuration for value %s", value),
	}
}

// NewActionInvocationError wraps an invoker failure. completed is the number
// of calls of the same rule that finished before the failing one.
func NewActionInvocationError(service string, index, completed int, err error) *EngineError {
	return (&EngineError{
		Class:   ErrorClassTransient,
		Code:    ErrCodeActionInvocation,
		Message: fmt.Sprintf("calling service %q failed", service),
		Err:     err,
	}).WithDetail("call_index", index).WithDetail("completed_calls", completed)
}

// NewTemplateError reports a malformed parameter template.
func NewTemplateError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeTemplate,
		Message: message,
		Err:     err,
	}
}

// NewConfigError reports invalid actuator configuration.
func NewConfigError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodeConfig,
		Message: message,
		Err:     err,
	}
}

// NewPolicyDeniedError reports a call rejected by policy before invocation.
func NewPolicyDeniedError(service string, reasons []string) *EngineError {
	return (&EngineError{
		Class:   ErrorClassPermanent,
		Code:    ErrCodePolicyDenied,
		Message: fmt.Sprintf("call to service %q denied by policy", service),
	}).WithDetail("reasons", reasons)
}

// IsInvalidValueType returns true if err is an InvalidValueType error.
func IsInvalidValueType(err error) bool {
	return hasCode(err, ErrCodeInvalidValueType)
}

// IsNoMatchingRule returns true if err reports a value with no configured rule.
func IsNoMatchingRule(err error) bool {
	return hasCode(err, ErrCodeNoMatchingRule)
}

// IsActionInvocation returns true if err is an invoker failure.
func IsActionInvocation(err error) bool {
	return hasCode(err, ErrCodeActionInvocation)
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// ErrorCode returns the code of the first EngineError in the chain.
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code string) bool {
	return ErrorCode(err) == code
}
