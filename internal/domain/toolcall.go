package domain

import (
	"encoding/json"
	"time"
)

// ToolCallStatus tracks the state machine of a recorded tool invocation:
// pending → running → {completed, failed}. No retries at this layer — a
// retry is a brand-new ToolCall.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// CanTransitionTo reports whether a tool call status change is allowed.
func (s ToolCallStatus) CanTransitionTo(next ToolCallStatus) bool {
	switch s {
	case ToolCallPending:
		return next == ToolCallRunning
	case ToolCallRunning:
		return next == ToolCallCompleted || next == ToolCallFailed
	default:
		return false
	}
}

// ToolCall is one recorded invocation of a named tool during an agent run.
// Arguments and result are captured verbatim as JSON.
type ToolCall struct {
	ID           int64           `json:"id"`
	ContextID    string          `json:"contextId"`
	Name         string          `json:"name"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Status       ToolCallStatus  `json:"status"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	DurationMS   int64           `json:"durationMs,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Position     int             `json:"position"`
	ExternalID   string          `json:"externalId,omitempty"` // the model's own tool-call reference
	CreatedAt    time.Time       `json:"createdAt"`
}
