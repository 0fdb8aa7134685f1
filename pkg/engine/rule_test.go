package engine

import (
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestPattern_Matches(t *testing.T) {
	pattern := Pattern{{Value: String("heat")}, {Wildcard: true}}

	tests := []struct {
		name  string
		value Tuple
		want  bool
	}{
		{"exact", MustTuple("heat", 20), true},
		{"wildcard any type", MustTuple("heat", nil), true},
		{"wrong head", MustTuple("cool", 20), false},
		{"too short", MustTuple("heat"), false},
		{"too long", MustTuple("heat", 20, 1), false},
		{"empty", Tuple{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pattern.Matches(tt.value); got != tt.want {
				t.Errorf("%s.Matches(%s) = %v, want %v", pattern, tt.value, got, tt.want)
			}
		})
	}

	if !(Pattern{}).Matches(Tuple{}) {
		t.Error("expected empty pattern to match empty tuple")
	}
}

func TestNewRuleTable_LongestFirst(t *testing.T) {
	specs := []RuleSpec{
		{Slots: []interface{}{"a"}, Calls: []CallSpec{{Service: "s/one"}}},
		{Slots: []interface{}{"a", "b", "c"}, Calls: []CallSpec{{Service: "s/three"}}},
		{Slots: []interface{}{}, Calls: []CallSpec{{Service: "s/zero"}}},
		{Slots: []interface{}{"x", "y"}, Calls: []CallSpec{{Service: "s/two-first"}}},
		{Slots: []interface{}{"*", "*"}, Calls: []CallSpec{{Service: "s/two-second"}}},
	}

	table, err := NewRuleTable(3, specs)
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	wantOrder := []string{"s/three", "s/two-first", "s/two-second", "s/one", "s/zero"}
	rules := table.Rules()
	if len(rules) != len(wantOrder) {
		t.Fatalf("expected %d rules, got %d", len(wantOrder), len(rules))
	}
	for i, service := range wantOrder {
		if rules[i].Calls[0].Service != service {
			t.Errorf("position %d: expected %s, got %s", i, service, rules[i].Calls[0].Service)
		}
	}
	for i := 1; i < len(rules); i++ {
		if len(rules[i-1].Pattern) < len(rules[i].Pattern) {
			t.Errorf("rules not sorted by length at %d", i)
		}
	}
	if rules[1].Index != 3 || rules[2].Index != 4 {
		t.Errorf("equal-length rules lost configuration order: %d, %d", rules[1].Index, rules[2].Index)
	}
}

func TestRuleTable_Lookup(t *testing.T) {
	table, err := NewRuleTable(2, []RuleSpec{
		{Slots: []interface{}{"*", "low"}, Calls: []CallSpec{{Service: "fan/low"}}},
		{Slots: []interface{}{"on", "*"}, Calls: []CallSpec{{Service: "fan/any"}}},
		{Slots: []interface{}{"on"}, Calls: []CallSpec{{Service: "fan/on"}}},
		{Slots: []interface{}{1.0}, Calls: []CallSpec{{Service: "fan/one"}}},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	tests := []struct {
		name    string
		value   Tuple
		service string
	}{
		{"first of tie wins", MustTuple("on", "low"), "fan/low"},
		{"second of tie", MustTuple("on", "high"), "fan/any"},
		{"short rule", MustTuple("on"), "fan/on"},
		{"int matches float", MustTuple(1), "fan/one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := table.Lookup(tt.value)
			if err != nil {
				t.Fatalf("Lookup(%s) failed: %v", tt.value, err)
			}
			if rule.Calls[0].Service != tt.service {
				t.Errorf("expected %s, got %s", tt.service, rule.Calls[0].Service)
			}
		})
	}

	_, err = table.Lookup(MustTuple("off", "high", "extra"))
	if !IsNoMatchingRule(err) {
		t.Errorf("expected NoMatchingRule, got %v", err)
	}
	if table.Matches(MustTuple("off")) {
		t.Error("expected no match for (off,)")
	}
}

func TestNewRuleTable_Defaults(t *testing.T) {
	table, err := NewRuleTable(1, []RuleSpec{
		{Slots: []interface{}{"on"}, Calls: []CallSpec{
			{Service: "light/turn_on"},
			{Service: "notify/send", IncludeEntityID: boolPtr(false)},
		}},
	})
	if err != nil {
		t.Fatalf("NewRuleTable failed: %v", err)
	}

	calls := table.Rules()[0].Calls
	if !calls[0].IncludeEntityID {
		t.Error("expected include_entity_id to default to true")
	}
	if calls[1].IncludeEntityID {
		t.Error("expected include_entity_id false to be kept")
	}
	if calls[0].Data == nil {
		t.Error("expected missing data to default to an empty map")
	}
}

func TestNewRuleTable_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		slots int
		spec  RuleSpec
	}{
		{
			name:  "pattern longer than slots",
			slots: 1,
			spec:  RuleSpec{Slots: []interface{}{"a", "b"}},
		},
		{
			name:  "unsupported element",
			slots: 1,
			spec:  RuleSpec{Slots: []interface{}{map[string]interface{}{"a": 1}}},
		},
		{
			name:  "missing service",
			slots: 1,
			spec:  RuleSpec{Slots: []interface{}{"a"}, Calls: []CallSpec{{}}},
		},
		{
			name:  "unknown placeholder",
			slots: 1,
			spec: RuleSpec{Slots: []interface{}{"a"}, Calls: []CallSpec{{
				Service: "x/y",
				Data:    map[string]interface{}{"v": "{brightness}"},
			}}},
		},
		{
			name:  "slot placeholder out of range",
			slots: 1,
			spec: RuleSpec{Slots: []interface{}{"a"}, Calls: []CallSpec{{
				Service: "x/y",
				Data:    map[string]interface{}{"v": "{slot1}"},
			}}},
		},
		{
			name:  "format spec",
			slots: 1,
			spec: RuleSpec{Slots: []interface{}{"a"}, Calls: []CallSpec{{
				Service: "x/y",
				Data:    map[string]interface{}{"v": "{slot0:>3}"},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleTable(tt.slots, []RuleSpec{tt.spec})
			if err == nil {
				t.Fatal("expected error")
			}
			if ErrorCode(err) != ErrCodeConfig {
				t.Errorf("expected %s, got %s (%v)", ErrCodeConfig, ErrorCode(err), err)
			}
		})
	}
}

func TestSlotIndex(t *testing.T) {
	tests := []struct {
		name string
		idx  int
		ok   bool
	}{
		{"slot0", 0, true},
		{"slot12", 12, true},
		{"slot", 0, false},
		{"slot01", 0, false},
		{"slot-1", 0, false},
		{"entity_id", 0, false},
	}

	for _, tt := range tests {
		idx, ok := slotIndex(tt.name)
		if ok != tt.ok || idx != tt.idx {
			t.Errorf("slotIndex(%q) = (%d, %v), want (%d, %v)", tt.name, idx, ok, tt.idx, tt.ok)
		}
	}
}
