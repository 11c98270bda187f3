package stack

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas manifests are validated against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("stack", builtinStackSchema)
	return sr
}

// RegisterSchema compiles and registers a CUE schema under a name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
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

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// ValidateStack validates a decoded stack against the #Stack schema.
func (sr *SchemaRegistry) ValidateStack(ctx context.Context, stack StackConfig) error {
	schema, ok := sr.GetSchema("stack")
	if !ok {
		return fmt.Errorf("schema stack not found")
	}
	def := schema.LookupPath(cue.ParsePath("#Stack"))
	if !def.Exists() {
		return fmt.Errorf("schema stack has no #Stack definition")
	}

	dataVal := sr.ctx.Encode(stack)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode stack: %w", err)
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("stack schema validation failed: %w", err)
	}
	return nil
}

// Built-in schema definitions

const builtinStackSchema = `
// Stack schema for provio deployment manifests
#Stack: {
	// name identifies the stack
	name: string & =~"^[a-zA-Z0-9][a-zA-Z0-9_-]*$"

	// description is an optional human-readable summary
	description?: string

	// provider configures the provider CLI
	provider: #Provider

	// steps is the ordered deployment sequence
	steps: [...#Step] & [_, ...]
}

#Provider: {
	// binary is the provider executable, e.g. "az"
	binary: string & !=""

	// base_args are prepended to every invocation
	base_args?: [...string]

	// timeout_seconds bounds one invocation
	timeout_seconds?: int & >0
}

#Step: {
	// name uniquely identifies the step within the stack
	name: string & =~"^[a-zA-Z0-9][a-zA-Z0-9_-]*$"

	description?: string

	// resource is the target resource name
	resource: string & !=""

	// action is the provider create action; empty for secret-only steps.
	// An action requires a probe so existing resources are found first.
	action: string | *""
	if action != "" {
		probe: #Probe
	}

	// args may contain ref://step/output references
	args?: {[string]: string}

	probe?: #Probe
	captures?: [...#Capture]
	credentials?: [...#Credential]
	secret?: #Secret
	poll?: #Poll

	retries?: int & >=0 & <=10
	retry_delay_seconds?: int & >0
	timeout_seconds?: int & >0
	confirm?: bool
	tags?: [...string]
}

#Probe: {
	action: string & !=""
	args?: {[string]: string}
	id_field?: string
	name_field?: string
}

#Capture: {
	// name is referenced by later steps as ref://<step>/<name>
	name: string & =~"^[a-zA-Z0-9][a-zA-Z0-9_.-]*$"
	path?: string
}

#Credential: {
	name: string & !=""
	arg?: string
	resource?: string
	role?: string
	value?: string
}

#Secret: {
	resource: string & !=""
	role: string & !=""
	mode?: "reuse" | "regenerate"
	generator?: "token" | "ssh-keypair"
	length?: int & >=8 & <=256
	value_from?: string
}

#Poll: {
	action: string & !=""
	args?: {[string]: string}
	attempts: int & >0
	interval_seconds: int & >0
	// predicate is a Starlark expression with "status" in scope
	predicate?: string
	remediation?: string
}
`
