package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `package actuator.test

import rego.v1

# Blocks scripts from being run by actors.

deny contains "scripts are not allowed" if {
	input.domain == "script"
}
`

func TestLoadFromFile_Rego(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	policyFile := filepath.Join(t.TempDir(), "no-scripts.rego")
	if err := os.WriteFile(policyFile, []byte(testRego), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "no-scripts" {
		t.Errorf("Expected name 'no-scripts', got '%s'", policy.Name)
	}
	if policy.Description != "Blocks scripts from being run by actors." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected error severity, got %s", policy.Severity)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	content := `{"name": "json-policy", "enabled": true, "rego": "package actuator.json\n\nimport rego.v1\n\ndeny contains \"no\" if { false }\n"}`
	if err := os.WriteFile(valid, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	policy, err := loader.loadFromFile(context.Background(), valid)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "json-policy" || policy.Severity != SeverityError {
		t.Errorf("Unexpected policy %+v", policy)
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"name": "empty"}`), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := loader.loadFromFile(context.Background(), invalid); err == nil {
		t.Error("Expected error for policy without rego")
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	path := filepath.Join(t.TempDir(), "quiet-hours.yaml")
	content := `name: quiet-hours
description: No media playback at night
severity: warning
enabled: true
rego: |
  package actuator.quiet_hours

  import rego.v1

  deny contains "media is muted at night" if {
  	input.domain == "media_player"
  }
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "quiet-hours" || policy.Severity != SeverityWarning {
		t.Errorf("Unexpected policy %+v", policy)
	}

	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := eng.Replace(context.Background(), []Policy{*policy}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	result, err := eng.EvaluateCall(context.Background(), &CallInput{EntityID: "media_player.tv", Service: "media_player/media_play"})
	if err != nil {
		t.Fatalf("EvaluateCall failed: %v", err)
	}
	if !result.Allowed || len(result.Warnings) != 1 {
		t.Errorf("Expected an allowed call with one warning, got %+v", result)
	}
}

func TestLoadFromPaths_Directory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)

	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	for path, content := range map[string]string{
		filepath.Join(dir, "a.rego"):      testRego,
		filepath.Join(nested, "b.rego"):   testRego,
		filepath.Join(dir, "README.md"):   "ignored",
		filepath.Join(dir, "broken.json"): "{",
	} {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestWatch_Reload(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	loader := NewLoader(logger)
	loader.SetReloadDelay(50 * time.Millisecond)

	dir := t.TempDir()
	policyFile := filepath.Join(dir, "no-scripts.rego")
	if err := os.WriteFile(policyFile, []byte(testRego), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan int, 8)
	err = loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		if err := eng.Replace(ctx, policies); err != nil {
			return err
		}
		reloaded <- len(policies)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer loader.StopWatching()

	second := filepath.Join(dir, "second.rego")
	if err := os.WriteFile(second, []byte(testRego), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case n := <-reloaded:
			if n == 2 {
				if _, err := eng.GetPolicy("second"); err != nil {
					t.Errorf("Expected reloaded policy in engine: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for policy reload")
		}
	}
}
