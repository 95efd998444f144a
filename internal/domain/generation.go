package domain

import (
	"encoding/json"
	"time"
)

// GenerationStatus is the outcome of one model-completion event.
type GenerationStatus string

const (
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation records one model-completion event (a full streamed response)
// within a context. Created once the model finishes, immutable afterward.
type Generation struct {
	ID              int64            `json:"id"`
	ContextID       string           `json:"contextId"`
	ProviderID      string           `json:"providerId,omitempty"` // provider-assigned response ID
	Model           string           `json:"model,omitempty"`
	FinishReason    string           `json:"finishReason,omitempty"`
	InputTokens     int              `json:"inputTokens"`
	OutputTokens    int              `json:"outputTokens"`
	TotalTokens     int              `json:"totalTokens"`
	CachedTokens    int              `json:"cachedTokens,omitempty"`
	ReasoningTokens int              `json:"reasoningTokens,omitempty"`
	DurationMS      int64            `json:"durationMs,omitempty"`
	Status          GenerationStatus `json:"status"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
	RawRequest      json.RawMessage  `json:"rawRequest,omitempty"`
	RawResponse     json.RawMessage  `json:"rawResponse,omitempty"`

	// ResponseMessageID links the generation to the assistant message it
	// produced, or 0 for failed generations with no message.
	ResponseMessageID int64     `json:"responseMessageId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}
