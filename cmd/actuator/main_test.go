package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/rs/zerolog"
)

func TestLogLevelFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want zerolog.Level
	}{
		{"unset", nil, zerolog.InfoLevel},
		{"generic", map[string]string{"LOG_LEVEL": "warn"}, zerolog.WarnLevel},
		{"own variable wins", map[string]string{"ACTUATOR_LOG_LEVEL": "debug", "LOG_LEVEL": "error"}, zerolog.DebugLevel},
		{"unknown own level falls through", map[string]string{"ACTUATOR_LOG_LEVEL": "loud", "LOG_LEVEL": "trace"}, zerolog.TraceLevel},
		{"unknown level", map[string]string{"LOG_LEVEL": "loud"}, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := logLevelFromEnv(func(key string) string { return tt.env[key] })
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"interrupted", fmt.Errorf("serve: %w", context.Canceled), exitOK},
		{"no matching rule", engine.NewNoMatchingRuleError(engine.MustTuple("cool")), exitNoMatch},
		{"bad configuration", engine.NewConfigError("pattern too long", nil), exitConfig},
		{"other", errors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}
