package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Wildcard is the pattern element that matches any single value.
const Wildcard = "*"

// Slot names one observable attribute. Its identity is its index.
type Slot struct {
	Attribute string `json:"attribute" yaml:"attribute"`
}

// PatternElem is one position of a Pattern: a wildcard or a concrete value.
type PatternElem struct {
	Wildcard bool
	Value    Value
}

// Matches reports whether the element accepts v.
func (p PatternElem) Matches(v Value) bool {
	return p.Wildcard || p.Value.Equal(v)
}

// String renders the element.
func (p PatternElem) String() string {
	if p.Wildcard {
		return Wildcard
	}
	return p.Value.String()
}

// Pattern is an ordered sequence of pattern elements.
type Pattern []PatternElem

// Matches reports whether the pattern matches t: lengths must be equal and
// every position must be a wildcard or equal to the value at that position.
func (p Pattern) Matches(t Tuple) bool {
	if len(p) != len(t) {
		return false
	}
	for i := range p {
		if !p[i].Matches(t[i]) {
			return false
		}
	}
	return true
}

// String renders the pattern.
func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Call is an action template: an external service plus a parameter tree.
type Call struct {
	Service         string
	Data            map[string]interface{}
	IncludeEntityID bool
}

// Rule pairs a pattern with the calls executed when it matches.
type Rule struct {
	Pattern Pattern
	Calls   []Call

	// Index is the rule's position in configuration order.
	Index int
}

// RuleSpec is the raw, unvalidated form of a rule as read from configuration.
type RuleSpec struct {
	Slots []interface{}
	Calls []CallSpec
}

// CallSpec is the raw form of a Call. A nil IncludeEntityID means true.
type CallSpec struct {
	Service         string
	Data            map[string]interface{}
	IncludeEntityID *bool
}

// RuleTable holds validated rules sorted longest pattern first. Equal lengths
// keep configuration order. A RuleTable is immutable after construction.
type RuleTable struct {
	slotCount int
	rules     []Rule
}

// NewRuleTable validates specs against slotCount and builds the table.
func NewRuleTable(slotCount int, specs []RuleSpec) (*RuleTable, error) {
	known := func(name string) bool {
		if name == EntityIDPlaceholder {
			return true
		}
		idx, ok := slotIndex(name)
		return ok && idx < slotCount
	}

	rules := make([]Rule, 0, len(specs))
	for i, spec := range specs {
		if len(spec.Slots) > slotCount {
			return nil, NewConfigError(
				fmt.Sprintf("value %d has %d slots but only %d are configured", i, len(spec.Slots), slotCount), nil)
		}

		pattern := make(Pattern, len(spec.Slots))
		for j, raw := range spec.Slots {
			if s, ok := raw.(string); ok && s == Wildcard {
				pattern[j] = PatternElem{Wildcard: true}
				continue
			}
			v, err := ValueOf(raw)
			if err != nil {
				return nil, NewConfigError(fmt.Sprintf("value %d", i), NewInvalidValueTypeError(j, raw))
			}
			pattern[j] = PatternElem{Value: v}
		}

		calls := make([]Call, len(spec.Calls))
		for j, cs := range spec.Calls {
			if cs.Service == "" {
				return nil, NewConfigError(fmt.Sprintf("value %d call %d: service is required", i, j), nil)
			}
			data := cs.Data
			if data == nil {
				data = map[string]interface{}{}
			}
			if err := validateTemplate(data, known); err != nil {
				return nil, NewConfigError(fmt.Sprintf("value %d call %d", i, j), NewTemplateError("invalid service data", err))
			}
			include := true
			if cs.IncludeEntityID != nil {
				include = *cs.IncludeEntityID
			}
			calls[j] = Call{Service: cs.Service, Data: data, IncludeEntityID: include}
		}

		rules = append(rules, Rule{Pattern: pattern, Calls: calls, Index: i})
	}

	sort.SliceStable(rules, func(a, b int) bool {
		return len(rules[a].Pattern) > len(rules[b].Pattern)
	})

	return &RuleTable{slotCount: slotCount, rules: rules}, nil
}

// SlotCount returns the number of slots the table was built for.
func (rt *RuleTable) SlotCount() int {
	return rt.slotCount
}

// Len returns the number of rules.
func (rt *RuleTable) Len() int {
	return len(rt.rules)
}

// Rules returns the rules in lookup order. Callers must not modify them.
func (rt *RuleTable) Rules() []Rule {
	return rt.rules
}

// Lookup returns the first rule in table order whose pattern matches t.
func (rt *RuleTable) Lookup(t Tuple) (*Rule, error) {
	if r := rt.find(t); r != nil {
		return r, nil
	}
	return nil, NewNoMatchingRuleError(t)
}

// Matches reports whether any rule matches t.
func (rt *RuleTable) Matches(t Tuple) bool {
	return rt.find(t) != nil
}

func (rt *RuleTable) find(t Tuple) *Rule {
	return rt.findMasked(t, nil)
}

// findMasked is find where positions with opaque[i] set hold an observed
// value that is not a slot value. Only wildcards accept those positions.
func (rt *RuleTable) findMasked(t Tuple, opaque []bool) *Rule {
	for i := range rt.rules {
		p := rt.rules[i].Pattern
		if len(p) != len(t) {
			continue
		}
		ok := true
		for j := range p {
			if j < len(opaque) && opaque[j] {
				ok = p[j].Wildcard
			} else {
				ok = p[j].Matches(t[j])
			}
			if !ok {
				break
			}
		}
		if ok {
			return &rt.rules[i]
		}
	}
	return nil
}

func slotIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "slot")
	if !ok || rest == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 || strconv.Itoa(idx) != rest {
		return 0, false
	}
	return idx, true
}
