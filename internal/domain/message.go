package domain

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ValidRole reports whether r is one of the allowed message roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ContentPart is one element of a multi-modal message body.
type ContentPart struct {
	Type     string `json:"type"` // "text" | "image"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64 payload for images
	MimeType string `json:"mimeType,omitempty"`
}

// Message is one immutable turn in a context's conversation. Position is
// zero-based, unique, and gapless within a context; it is assigned at
// append time and never changes.
type Message struct {
	ID           int64         `json:"id"`
	ContextID    string        `json:"contextId"`
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	ContentParts []ContentPart `json:"contentParts,omitempty"`
	Position     int           `json:"position"`
	ToolCallID   string        `json:"toolCallId,omitempty"`
	Name         string        `json:"name,omitempty"`
	FunctionName string        `json:"functionName,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
