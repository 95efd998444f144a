// Package agent implements the context manager, tool registry, and tool-call
// recording that together form the audit trail of every agent action.
package agent

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/logging"
)

// Tool is an agent capability the model can invoke. InputSchema returns a
// JSON Schema string describing the expected arguments; every tool exposed
// to a model must have one.
type Tool interface {
	Name() string
	Description() string
	InputSchema() string
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// funcTool adapts a plain function to the Tool interface.
type funcTool struct {
	name        string
	description string
	schema      string
	fn          func(ctx context.Context, input json.RawMessage) (string, error)
}

// NewTool builds a Tool from a function.
func NewTool(name, description, schema string, fn func(ctx context.Context, input json.RawMessage) (string, error)) Tool {
	return &funcTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) InputSchema() string { return t.schema }
func (t *funcTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}

// ToolRegistry holds the tools available to an agent run.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   *logging.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(log *logging.Logger) *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
		log:   log.Sub("tools"),
	}
}

// Register adds a tool. Tools without an input schema are rejected: a
// schemaless tool cannot be advertised to the model.
func (r *ToolRegistry) Register(t Tool) error {
	if t.InputSchema() == "" {
		return &MissingToolSchemaError{Tool: t.Name()}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.log.Debug().Str("tool", t.Name()).Msg("tool registered")
	return nil
}

// Get returns the named tool or an UnknownToolError.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

// List returns all registered tool names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool schemas in the form providers expect.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute resolves and runs a tool by name. Execution failures are wrapped
// in a ToolExecutionError; the original error remains reachable via Unwrap.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	out, err := t.Execute(ctx, input)
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}
	return out, nil
}
