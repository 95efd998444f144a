package agent

import "fmt"

// ValidationError reports a missing or malformed field on an agent request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ContextNotLoadedError is returned when an operation requires a bound
// context but none has been loaded or created.
type ContextNotLoadedError struct {
	Op string
}

func (e *ContextNotLoadedError) Error() string {
	return fmt.Sprintf("%s: no context loaded", e.Op)
}

// UnknownToolError is returned when a tool name does not resolve against the
// registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// MissingToolSchemaError is returned when a tool is registered or advertised
// without an input schema.
type MissingToolSchemaError struct {
	Tool string
}

func (e *MissingToolSchemaError) Error() string {
	return fmt.Sprintf("tool %q has no input schema", e.Tool)
}

// ToolExecutionError wraps a failure inside a tool's Execute.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
