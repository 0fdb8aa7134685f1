package engine

import (
	"fmt"
	"strings"
)

// Placeholder names available to parameter templates.
const (
	EntityIDPlaceholder = "entity_id"
	slotPlaceholderFmt  = "slot%d"
)

// SlotPlaceholder returns the placeholder name bound to slot index i.
func SlotPlaceholder(i int) string {
	return fmt.Sprintf(slotPlaceholderFmt, i)
}

// Substitutions binds placeholder names to values for one execution.
type Substitutions map[string]Value

// segment is either a literal run of text or a placeholder reference.
type segment struct {
	literal string
	field   string
}

// parseTemplate splits s into literal and placeholder segments.
//
// Supported syntax is "{name}", the positional form "{0[name]}", and "{{" /
// "}}" as escaped braces. Format specs and conversions are rejected.
func parseTemplate(s string) ([]segment, error) {
	var (
		segs []segment
		lit  strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{' at offset %d in %q", i, s)
			}
			field, err := parseField(s[i+1 : i+1+end])
			if err != nil {
				return nil, fmt.Errorf("%w in %q", err, s)
			}
			if lit.Len() > 0 {
				segs = append(segs, segment{literal: lit.String()})
				lit.Reset()
			}
			segs = append(segs, segment{field: field})
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at offset %d in %q", i, s)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{literal: lit.String()})
	}
	return segs, nil
}

func parseField(raw string) (string, error) {
	if strings.ContainsAny(raw, ":!{") {
		return "", fmt.Errorf("unsupported placeholder {%s}", raw)
	}
	field := raw
	if strings.HasPrefix(field, "0[") && strings.HasSuffix(field, "]") {
		field = field[2 : len(field)-1]
	}
	if field == "" || strings.ContainsAny(field, "[]. ") {
		return "", fmt.Errorf("invalid placeholder {%s}", raw)
	}
	return field, nil
}

// Render formats s against the substitutions.
func (s Substitutions) Render(str string) (string, error) {
	if !strings.ContainsAny(str, "{}") {
		return str, nil
	}
	segs, err := parseTemplate(str)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segs {
		if seg.field == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := s[seg.field]
		if !ok {
			return "", fmt.Errorf("unknown placeholder {%s}", seg.field)
		}
		b.WriteString(v.Format())
	}
	return b.String(), nil
}

// RenderParams returns a deep copy of data with every string leaf rendered
// against the substitutions. Mapping keys and non-string scalars are copied
// unchanged. data itself is never modified.
func (s Substitutions) RenderParams(data map[string]interface{}) (map[string]interface{}, error) {
	root := make(map[string]interface{}, len(data))
	if err := walkTree(data, root, func(str string) (interface{}, error) {
		return s.Render(str)
	}); err != nil {
		return nil, err
	}
	return root, nil
}

// validateTemplate checks every string leaf of data for well-formed
// placeholders whose names satisfy known.
func validateTemplate(data map[string]interface{}, known func(string) bool) error {
	return walkTree(data, make(map[string]interface{}, len(data)), func(str string) (interface{}, error) {
		if !strings.ContainsAny(str, "{}") {
			return str, nil
		}
		segs, err := parseTemplate(str)
		if err != nil {
			return nil, err
		}
		for _, seg := range segs {
			if seg.field != "" && !known(seg.field) {
				return nil, fmt.Errorf("unknown placeholder {%s} in %q", seg.field, str)
			}
		}
		return str, nil
	})
}

// walkTree copies src into dst using an explicit worklist, so deeply nested
// parameter trees never grow the call stack. leaf is applied to every string.
func walkTree(src, dst map[string]interface{}, leaf func(string) (interface{}, error)) error {
	type pair struct {
		src, dst interface{}
	}

	copyNode := func(v interface{}) (interface{}, bool, error) {
		switch t := v.(type) {
		case string:
			out, err := leaf(t)
			return out, false, err
		case map[string]interface{}:
			return make(map[string]interface{}, len(t)), true, nil
		case []interface{}:
			return make([]interface{}, len(t)), true, nil
		default:
			return v, false, nil
		}
	}

	work := []pair{{src: src, dst: dst}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		switch from := p.src.(type) {
		case map[string]interface{}:
			to := p.dst.(map[string]interface{})
			for k, v := range from {
				out, container, err := copyNode(v)
				if err != nil {
					return fmt.Errorf("key %q: %w", k, err)
				}
				to[k] = out
				if container {
					work = append(work, pair{src: v, dst: out})
				}
			}
		case []interface{}:
			to := p.dst.([]interface{})
			for i, v := range from {
				out, container, err := copyNode(v)
				if err != nil {
					return fmt.Errorf("index %d: %w", i, err)
				}
				to[i] = out
				if container {
					work = append(work, pair{src: v, dst: out})
				}
			}
		}
	}
	return nil
}
