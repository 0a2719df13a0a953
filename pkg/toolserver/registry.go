// Package toolserver exposes schema-described tools over newline-framed
// JSON-RPC on an io.Reader/io.Writer pair, typically a process's own
// stdin/stdout. The registry maps tool names to validated handlers; the
// server routes protocol methods and never lets a handler failure
// escape as a transport fault.
package toolserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/halim/kalku/pkg/mcp"
)

// Handler executes one validated tool call and returns display text.
// A returned error is a domain-level failure; the dispatcher converts
// it into an isError result rather than a protocol error.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Parameter declares one tool argument. Declarations are compiled to
// a JSON Schema at registration time.
type Parameter struct {
	Name        string
	Type        string // string, number, integer, boolean, object, array
	Description string
	Required    bool
}

// Tool pairs a descriptor with its handler and compiled schema.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     Handler

	schema *gojsonschema.Schema
}

// Registry holds the published tool table. Registration happens at
// startup; duplicate names are a configuration error, not a runtime
// condition. List order is registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register validates the definition, compiles its argument schema,
// and adds it to the table.
func (r *Registry) Register(tool Tool) error {
	if err := validateTool(tool); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(tool.Parameters)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", tool.Name, err)
	}
	tool.schema = schema

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = &tool
	r.order = append(r.order, tool.Name)

	log.Debug().Str("tool", tool.Name).Msg("Tool registered")
	return nil
}

// MustRegister registers or panics. Intended for startup wiring where
// a bad definition is a programming error.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// List returns the published descriptors in registration order.
func (r *Registry) List() []mcp.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]mcp.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, descriptor(r.tools[name]))
	}
	return out
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func validateTool(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range tool.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

// schemaMap renders parameter declarations as a JSON Schema document.
func schemaMap(params []Parameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, param := range params {
		prop := map[string]interface{}{"type": param.Type}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(params []Parameter) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(params)))
}

func descriptor(tool *Tool) mcp.ToolDescriptor {
	return mcp.ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schemaMap(tool.Parameters),
	}
}
