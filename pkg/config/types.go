package config

import (
	"fmt"
	"time"

	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/openfroyo/actuator/pkg/telemetry"
)

// Actor types.
const (
	ActorTypeGeneric = "generic"
	ActorTypeSwitch  = "switch"
)

// Config is the top-level actuator configuration.
type Config struct {
	// Telemetry configures logging, tracing and metrics. It is checked by
	// telemetry.Config.Validate, not by the struct pass.
	Telemetry *telemetry.Config `json:"telemetry,omitempty" yaml:"telemetry,omitempty" validate:"-"`

	// HomeAssistant configures the service-call backend.
	HomeAssistant HomeAssistantConfig `json:"homeassistant" yaml:"homeassistant"`

	// Policy configures the call guard.
	Policy *PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Actors lists the controlled entities.
	Actors []ActorConfig `json:"actors" yaml:"actors" validate:"dive"`

	// SourceFiles are the files the configuration was read from.
	SourceFiles []string `json:"-" yaml:"-"`

	// LoadedAt is when the configuration was loaded.
	LoadedAt time.Time `json:"-" yaml:"-"`
}

// HomeAssistantConfig configures the Home Assistant REST client.
type HomeAssistantConfig struct {
	// URL is the base URL of the Home Assistant instance.
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`

	// TokenEnv names the environment variable holding the access token.
	TokenEnv string `json:"token_env,omitempty" yaml:"token_env,omitempty"`

	// Timeout bounds a single request, e.g. "10s".
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RefreshSchedule is a cron expression for re-reading entity states
	// while serving, e.g. "*/5 * * * *". Empty disables it.
	RefreshSchedule string `json:"refresh_schedule,omitempty" yaml:"refresh_schedule,omitempty"`
}

// RequestTimeout parses Timeout, defaulting to 10 seconds.
func (h HomeAssistantConfig) RequestTimeout() (time.Duration, error) {
	if h.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid homeassistant timeout %q: %w", h.Timeout, err)
	}
	return d, nil
}

// PolicyConfig configures policy enforcement on service calls.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Paths lists .rego files or directories.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`

	// Mode is the enforcement mode (advisory, enforcing).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`

	// Watch reloads policies when files under Paths change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
}

// ActorConfig configures one controlled entity.
type ActorConfig struct {
	// EntityID identifies the controlled entity.
	EntityID string `json:"entity_id" yaml:"entity_id" validate:"required"`

	// Type is generic or switch. Empty means generic.
	Type string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=generic switch"`

	// Slots lists the observable attributes in slot order.
	Slots []SlotConfig `json:"slots,omitempty" yaml:"slots,omitempty" validate:"dive"`

	// Values lists the supported values and their calls.
	Values []ValueConfig `json:"values,omitempty" yaml:"values,omitempty" validate:"dive"`
}

// SlotConfig names one slot's attribute.
type SlotConfig struct {
	Attribute string `json:"attribute" yaml:"attribute" validate:"required"`
}

// ValueConfig pairs a slot pattern with the calls run for it.
type ValueConfig struct {
	// Slots is the pattern; "*" matches anything.
	Slots []interface{} `json:"slots" yaml:"slots"`

	// Calls are executed in order when the pattern matches.
	Calls []CallConfig `json:"calls,omitempty" yaml:"calls,omitempty" validate:"dive"`
}

// CallConfig is one service call template.
type CallConfig struct {
	// Service is "<domain>/<service>".
	Service string `json:"service" yaml:"service" validate:"required"`

	// Data is the parameter template.
	Data map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`

	// IncludeEntityID adds entity_id to the parameters when absent.
	// Nil means true.
	IncludeEntityID *bool `json:"include_entity_id,omitempty" yaml:"include_entity_id,omitempty"`
}

// EngineSlots converts the slot list.
func (ac ActorConfig) EngineSlots() []engine.Slot {
	slots := make([]engine.Slot, len(ac.Slots))
	for i, s := range ac.Slots {
		slots[i] = engine.Slot{Attribute: s.Attribute}
	}
	return slots
}

// RuleSpecs converts the value list.
func (ac ActorConfig) RuleSpecs() []engine.RuleSpec {
	specs := make([]engine.RuleSpec, len(ac.Values))
	for i, v := range ac.Values {
		calls := make([]engine.CallSpec, len(v.Calls))
		for j, c := range v.Calls {
			calls[j] = engine.CallSpec{
				Service:         c.Service,
				Data:            c.Data,
				IncludeEntityID: c.IncludeEntityID,
			}
		}
		specs[i] = engine.RuleSpec{Slots: v.Slots, Calls: calls}
	}
	return specs
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the path to the offending field (e.g., "actors.0.entity_id").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (v ValidationError) Error() string {
	loc := v.File
	if v.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", v.File, v.Line, v.Column)
	}
	switch {
	case loc != "" && v.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, v.Path, v.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, v.Message)
	case v.Path != "":
		return fmt.Sprintf("%s: %s", v.Path, v.Message)
	}
	return v.Message
}
