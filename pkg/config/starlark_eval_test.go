package config

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	evaluator.lookup = func(name string) (string, bool) {
		if name == "HASS_URL" {
			return "http://hass.local:8123", true
		}
		return "", false
	}
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		checkFunc func(*testing.T, map[string]interface{})
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: `result = 2 + 2`,
			checkFunc: func(t *testing.T, out map[string]interface{}) {
				if out["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", out["result"])
				}
			},
		},
		{
			name:   "json and wildcard",
			script: `pattern = json.decode('["heat", null]') + [wildcard]`,
			checkFunc: func(t *testing.T, out map[string]interface{}) {
				want := []interface{}{"heat", nil, "*"}
				if !reflect.DeepEqual(out["pattern"], want) {
					t.Errorf("expected %v, got %#v", want, out["pattern"])
				}
			},
		},
		{
			name: "generate values with a function",
			script: `
def preset(temp):
    return {"slots": ("heat", temp), "calls": [{"service": "climate/set_temperature", "data": {"temperature": "{slot1}"}}]}

_temps = [18, 21.5]
values = [preset(t) for t in _temps]
`,
			checkFunc: func(t *testing.T, out map[string]interface{}) {
				if _, ok := out["preset"]; ok {
					t.Error("expected functions to be omitted from output")
				}
				if _, ok := out["_temps"]; ok {
					t.Error("expected private names to be omitted from output")
				}
				values := out["values"].([]interface{})
				if len(values) != 2 {
					t.Fatalf("expected 2 values, got %d", len(values))
				}
				slots := values[1].(map[string]interface{})["slots"]
				if !reflect.DeepEqual(slots, []interface{}{"heat", 21.5}) {
					t.Errorf("expected tuple converted to list, got %#v", slots)
				}
			},
		},
		{
			name: "env builtin",
			script: `
url = env("HASS_URL")
token = env("MISSING", "fallback")
none = env("MISSING")
`,
			checkFunc: func(t *testing.T, out map[string]interface{}) {
				if out["url"] != "http://hass.local:8123" {
					t.Errorf("unexpected url %v", out["url"])
				}
				if out["token"] != "fallback" {
					t.Errorf("unexpected token %v", out["token"])
				}
				if out["none"] != nil {
					t.Errorf("expected None, got %v", out["none"])
				}
			},
		},
		{
			name:   "struct output",
			script: `ha = struct(url = "http://x", token_env = "T")`,
			checkFunc: func(t *testing.T, out map[string]interface{}) {
				want := map[string]interface{}{"url": "http://x", "token_env": "T"}
				if !reflect.DeepEqual(out["ha"], want) {
					t.Errorf("unexpected struct conversion: %#v", out["ha"])
				}
			},
		},
		{
			name:    "syntax error",
			script:  `x = (`,
			wantErr: true,
		},
		{
			name:    "non-string dict key",
			script:  `x = {1: "a"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := evaluator.Evaluate(ctx, "test.star", tt.script)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checkFunc != nil && err == nil {
				tt.checkFunc(t, out)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	script := `
def spin():
    n = 0
    for i in range(100000000):
        n += i
    return n

x = spin()
`
	_, err := evaluator.Evaluate(context.Background(), "slow.star", script)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
}
