package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openfroyo/actuator/pkg/engine"
	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs configuration scripts. A script describes the
// configuration by assigning top-level globals such as actors and
// homeassistant. Names starting with "_" and functions are not exported.
//
// Scripts may use struct(), json.encode/decode, env(name, default=None)
// and the constant wildcard ("*").
type StarlarkEvaluator struct {
	timeout time.Duration
	lookup  func(string) (string, bool)
}

// NewStarlarkEvaluator creates an evaluator whose scripts are cancelled
// after timeout. Zero means 30 seconds.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout, lookup: os.LookupEnv}
}

// Evaluate executes script and returns its exported globals as plain Go
// values.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "actuator-config",
		Print: func(*starlark.Thread, string) {},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":     json.Module,
		"env":      starlark.NewBuiltin("env", se.env),
		"wildcard": starlark.String(engine.Wildcard),
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("starlark execution of %s: timeout after %v", filename, se.timeout)
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	out := make(map[string]interface{}, len(globals))
	for name, val := range globals {
		if _, isFunc := val.(starlark.Callable); isFunc || strings.HasPrefix(name, "_") {
			continue
		}
		if out[name], err = fromStarlark(val); err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
	}
	return out, nil
}

func (se *StarlarkEvaluator) env(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := se.lookup(name); ok {
		return starlark.String(v), nil
	}
	return def, nil
}

// fromStarlark converts a Starlark value to the types the YAML decoder
// produces. Tuples become lists so slot patterns may be written either way.
func fromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		return nil, fmt.Errorf("integer %s out of range", val)
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Indexable:
		list := make([]interface{}, val.Len())
		for i := range list {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		m := make(map[string]interface{}, val.Len())
		for _, kv := range val.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", kv[0].Type())
			}
			item, err := fromStarlark(kv[1])
			if err != nil {
				return nil, err
			}
			m[string(key)] = item
		}
		return m, nil
	case *starlarkstruct.Struct:
		m := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			if m[name], err = fromStarlark(attr); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
}
