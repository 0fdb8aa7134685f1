package commands

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseScalar parses a command-line value as a YAML scalar, so that 21
// and 21.5 become numbers, "null" and "~" become null and anything else
// stays a string.
func parseScalar(arg string) (interface{}, error) {
	var v interface{}
	if err := yaml.Unmarshal([]byte(arg), &v); err != nil {
		return arg, nil
	}
	switch v.(type) {
	case nil, int, float64, string:
		return v, nil
	case bool:
		// Booleans would be coerced to 1 and 0.
		return arg, nil
	default:
		return nil, fmt.Errorf("value %q must be a scalar", arg)
	}
}

// parseValue parses positional value arguments.
func parseValue(args []string) ([]interface{}, error) {
	value := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := parseScalar(arg)
		if err != nil {
			return nil, err
		}
		value[i] = v
	}
	return value, nil
}

// parseAttributes parses attr=value arguments.
func parseAttributes(args []string) (map[string]interface{}, error) {
	attrs := make(map[string]interface{}, len(args))
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected name=value", arg)
		}
		v, err := parseScalar(raw)
		if err != nil {
			return nil, err
		}
		attrs[name] = v
	}
	return attrs, nil
}
