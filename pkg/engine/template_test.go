package engine

import (
	"reflect"
	"strings"
	"testing"
)

func TestSubstitutions_Render(t *testing.T) {
	subs := Substitutions{
		"entity_id": String("climate.living"),
		"slot0":     String("heat"),
		"slot1":     Float(21),
		"slot2":     Null(),
		"slot3":     Float(1e20),
		"slot4":     MustTuple(true)[0],
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "no placeholders", want: "no placeholders"},
		{name: "named", in: "{slot0}", want: "heat"},
		{name: "positional", in: "{0[slot0]}", want: "heat"},
		{name: "float", in: "{slot1}", want: "21.0"},
		{name: "null", in: "[{slot2}]", want: "[]"},
		{name: "large float", in: "{slot3}", want: "1e+20"},
		{name: "boolean", in: "{slot4}", want: "1"},
		{name: "mixed", in: "{entity_id}:{slot0}", want: "climate.living:heat"},
		{name: "escaped", in: "{{slot0}}", want: "{slot0}"},
		{name: "unknown", in: "{slot9}", wantErr: true},
		{name: "unclosed", in: "{slot0", wantErr: true},
		{name: "stray close", in: "a}b", wantErr: true},
		{name: "conversion", in: "{slot0!r}", wantErr: true},
		{name: "attribute access", in: "{slot0.real}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := subs.Render(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSubstitutions_RenderParams(t *testing.T) {
	data := map[string]interface{}{
		"temperature": "{slot1}",
		"{slot0}":     "key untouched",
		"count":       3,
		"enabled":     true,
		"nested": map[string]interface{}{
			"mode": "{slot0}",
			"list": []interface{}{"{entity_id}", 1.5, nil, []interface{}{"{slot0}"}},
		},
	}
	subs := Substitutions{
		"entity_id": String("climate.living"),
		"slot0":     String("heat"),
		"slot1":     Int(21),
	}

	got, err := subs.RenderParams(data)
	if err != nil {
		t.Fatalf("RenderParams failed: %v", err)
	}

	want := map[string]interface{}{
		"temperature": "21",
		"{slot0}":     "key untouched",
		"count":       3,
		"enabled":     true,
		"nested": map[string]interface{}{
			"mode": "heat",
			"list": []interface{}{"climate.living", 1.5, nil, []interface{}{"heat"}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected result:\n got: %#v\nwant: %#v", got, want)
	}

	if data["temperature"] != "{slot1}" {
		t.Error("template was modified")
	}
	nested := data["nested"].(map[string]interface{})
	if nested["mode"] != "{slot0}" {
		t.Error("nested template was modified")
	}

	got["nested"].(map[string]interface{})["mode"] = "changed"
	if nested["mode"] != "{slot0}" {
		t.Error("rendered tree shares structure with the template")
	}
}

func TestRenderParams_DeepNesting(t *testing.T) {
	const depth = 10000

	root := map[string]interface{}{}
	cur := root
	for i := 0; i < depth; i++ {
		next := map[string]interface{}{}
		cur["child"] = next
		cur = next
	}
	cur["leaf"] = "{slot0}"

	got, err := Substitutions{"slot0": String("x")}.RenderParams(root)
	if err != nil {
		t.Fatalf("RenderParams failed: %v", err)
	}

	node := got
	for i := 0; i < depth; i++ {
		node = node["child"].(map[string]interface{})
	}
	if node["leaf"] != "x" {
		t.Errorf("expected leaf to be rendered, got %v", node["leaf"])
	}
}

func TestValidateTemplate(t *testing.T) {
	known := func(name string) bool { return name == "slot0" || name == "entity_id" }

	if err := validateTemplate(map[string]interface{}{
		"a": []interface{}{"{slot0}", map[string]interface{}{"b": "{entity_id}"}},
	}, known); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := validateTemplate(map[string]interface{}{
		"a": []interface{}{"ok", "{slot3}"},
	}, known)
	if err == nil {
		t.Fatal("expected error for unknown placeholder")
	}
	if !strings.Contains(err.Error(), "slot3") {
		t.Errorf("expected error to name the placeholder, got %v", err)
	}
}
