// Package llm defines the generation capability interface and pluggable
// provider clients. Providers accept a system prompt, ordered messages, and
// optional tool schemas, and return either a full response or a stream of
// incremental events.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Role constants for messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MessagePart is one element of a multi-modal message body.
type MessagePart struct {
	Type     string `json:"type"` // "text" | "image"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64 image payload
	MimeType string `json:"mimeType,omitempty"`
}

// Message is a single turn in a conversation.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []MessagePart `json:"parts,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"` // links a tool result to the call that produced it
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"` // tool invocations requested by an assistant turn
}

// ToolDefinition describes a tool the model can invoke.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"` // JSON Schema string
}

// CompletionRequest is the input to a Complete or Stream call.
type CompletionRequest struct {
	Model       string           `json:"model,omitempty"`
	System      string           `json:"system,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"toolChoice,omitempty"` // "auto" | "none" | tool name
	MaxTokens   int              `json:"maxTokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
}

// CompletionResponse is the result of a completion (full or streamed).
type CompletionResponse struct {
	ID           string          `json:"id,omitempty"` // provider-assigned response ID
	Content      string          `json:"content"`
	FinishReason string          `json:"finishReason,omitempty"`
	ToolCalls    []ToolCall      `json:"toolCalls,omitempty"`
	Usage        Usage           `json:"usage"`
	Model        string          `json:"model,omitempty"`
	Duration     time.Duration   `json:"duration,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"` // raw provider response for audit snapshots
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"` // arguments as JSON
}

// Usage tracks token consumption for one completion.
type Usage struct {
	InputTokens     int `json:"inputTokens"`
	OutputTokens    int `json:"outputTokens"`
	CachedTokens    int `json:"cachedTokens,omitempty"`
	ReasoningTokens int `json:"reasoningTokens,omitempty"`
}

// Total returns input + output tokens. Advisory only — some providers count
// differently.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta
	Error   string `json:"error,omitempty"`   // error message (type="error")

	// Final fields (type="done")
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface all generation providers must implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after the "done" or "error" event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "claude", "ollama").
	Name() string
}
