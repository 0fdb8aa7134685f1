package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	for _, b := range builtinSchemas {
		if err := sr.RegisterSchema(b.name, builtinConfigSchema, b.definition); err != nil {
			panic(fmt.Sprintf("built-in schema %s: %v", b.name, err))
		}
	}

	return sr
}

var builtinSchemas = []struct {
	name       string
	definition string
}{
	{"config", "#Config"},
	{"actor", "#Actor"},
	{"value", "#Value"},
	{"call", "#Call"},
}

// RegisterSchema compiles schema and registers the value at definition
// (e.g. "#Actor") under name. An empty definition registers the whole value.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	if definition != "" {
		val = val.LookupPath(cue.ParsePath(definition))
		if !val.Exists() {
			return fmt.Errorf("schema %s has no definition %s", name, definition)
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
// A cue.Context is not safe for concurrent use, so validations are serialized.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinConfigSchema = `
#Config: {
	telemetry?: null | {...}

	homeassistant?: null | {
		url?:       string
		token_env?: string
		timeout?:   string
		refresh_schedule?: string
	}

	policy?: null | {
		enabled?: bool
		paths?: [...string]
		mode?:  "advisory" | "enforcing"
		watch?: bool
	}

	actors?: null | [...#Actor]
}

#Actor: {
	// entity_id identifies the controlled entity
	entity_id: string & !=""

	type?: "generic" | "switch"

	slots?: null | [...#Slot]

	values?: null | [...#Value]
}

#Slot: {
	attribute: string & !=""
}

#Value: {
	// "*" is a wildcard; booleans stand for 1 and 0; containers are not slot values
	slots: [...(number | string | bool | null)]

	calls?: null | [...#Call]
}

#Call: {
	service: string & !=""

	data?: null | {...}

	include_entity_id?: bool
}
`

// ValidateActor validates a raw actor mapping against the actor schema.
func (sr *SchemaRegistry) ValidateActor(ctx context.Context, actor map[string]interface{}) error {
	return sr.ValidateAgainstSchema(ctx, "actor", actor)
}
