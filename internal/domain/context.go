// Package domain defines the persisted records that make up an agent
// action's audit trail: contexts, messages, tool calls, and generations.
package domain

import "time"

// ContextStatus tracks the lifecycle of an agent context.
type ContextStatus string

const (
	ContextPending    ContextStatus = "pending"
	ContextInProgress ContextStatus = "in_progress"
	ContextCompleted  ContextStatus = "completed"
	ContextFailed     ContextStatus = "failed"
)

// CanTransitionTo reports whether a status change is allowed. Transitions
// are monotonic: pending → in_progress → {completed, failed}.
func (s ContextStatus) CanTransitionTo(next ContextStatus) bool {
	switch s {
	case ContextPending:
		return next == ContextInProgress || next == ContextCompleted || next == ContextFailed
	case ContextInProgress:
		return next == ContextCompleted || next == ContextFailed
	default:
		return false
	}
}

// Terminal reports whether the status is an end state.
func (s ContextStatus) Terminal() bool {
	return s == ContextCompleted || s == ContextFailed
}

// OwnerRef is a polymorphic reference to the domain entity a context is
// attached to (e.g. a report page). The context does not own the referent.
type OwnerRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Context is one AI-agent session: the conversation, tool calls, and
// generation results recorded for a single dispatched action.
type Context struct {
	ID           string         `json:"id"`
	AgentID      string         `json:"agentId"`
	ActionID     string         `json:"actionId"`
	Owner        *OwnerRef      `json:"owner,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
	Status       ContextStatus  `json:"status"`
	TraceID      string         `json:"traceId,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	// Loaded children, ordered by position. Populated by store loads,
	// empty on freshly created contexts.
	Messages    []Message    `json:"messages,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	Generations []Generation `json:"generations,omitempty"`
}
