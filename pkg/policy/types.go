package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block the call.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must block the call.
	SeverityCritical Severity = "critical"
)

// blocking reports whether a violation of this severity denies the call.
func (s Severity) blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Mode selects what happens to a call with blocking violations.
type Mode string

const (
	// ModeEnforcing rejects the call.
	ModeEnforcing Mode = "enforcing"

	// ModeAdvisory logs the violations and lets the call through.
	ModeAdvisory Mode = "advisory"
)

// ParseMode maps a configuration string to a Mode. Empty means enforcing.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeEnforcing:
		return ModeEnforcing, nil
	case ModeAdvisory:
		return ModeAdvisory, nil
	}
	return "", &ValidationError{Field: "mode", Message: "must be advisory or enforcing", Value: s}
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from the
	// package's deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// EntityID is the entity the call targets.
	EntityID string `json:"entity_id,omitempty"`

	// Service is the service being called.
	Service string `json:"service,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// PolicyResult represents the result of evaluating one call.
type PolicyResult struct {
	// Allowed indicates if the call may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists violations that don't block the call.
	Warnings []PolicyViolation `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Reasons returns the messages of the blocking violations.
func (r *PolicyResult) Reasons() []string {
	reasons := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		reasons[i] = v.Policy + ": " + v.Message
	}
	return reasons
}

// CallInput is the policy input for one rendered service call.
type CallInput struct {
	// EntityID is the actor's entity.
	EntityID string `json:"entity_id"`

	// Service is "<domain>/<service>".
	Service string `json:"service"`

	// Domain and Name are the two halves of Service.
	Domain string `json:"domain"`
	Name   string `json:"name"`

	// Data is the rendered parameter mapping.
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// toInput converts the call to the plain map handed to OPA.
func (c *CallInput) toInput() map[string]interface{} {
	data := c.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return map[string]interface{}{
		"entity_id": c.EntityID,
		"service":   c.Service,
		"domain":    c.Domain,
		"name":      c.Name,
		"data":      data,
		"timestamp": c.Timestamp.Format(time.RFC3339),
	}
}

// ValidationError represents a policy validation error.
type ValidationError struct {
	// Field is the field that failed validation.
	Field string `json:"field"`

	// Message describes the validation error.
	Message string `json:"message"`

	// Value is the invalid value.
	Value interface{} `json:"value,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid policy " + e.Field + ": " + e.Message
}
