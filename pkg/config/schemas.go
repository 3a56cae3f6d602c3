package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is a CUE
// definition looked up by name.
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

	if err := sr.RegisterSchema("scenario", builtinSchemas, "#Scenario"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("quantity", builtinSchemas, "#Quantity"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("axis", builtinSchemas, "#Axis"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and registers the definition at path
// (e.g. "#Scenario") under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return fmt.Errorf("schema %s: definition %s not found", name, path)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and requires the result to be
// concrete.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	sr.mu.RLock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.RUnlock()
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
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

// Context returns the CUE context schemas are compiled in. Values unified
// with a registered schema must come from the same context.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// Built-in schema definitions

const builtinSchemas = `
// Quantity is a magnitude with a unit expression such as "passenger/day".
#Quantity: {
	value: number
	unit:  string
}

// Axis is one swept input. stop is exclusive.
#Axis: {
	name:  string & !=""
	start: number
	stop:  number
	step:  number & !=0
	unit?: string
}

// Scenario names the inputs of one evaluation and its requested output.
#Scenario: {
	name:         string & =~"^[a-zA-Z0-9_.-]+$"
	description?: string
	output:       string & =~"^[a-zA-Z_][a-zA-Z0-9_]*$"
	inputs: [string]: number | #Quantity
	sweep?: [...#Axis]
	policies?: [...string]
}
`
