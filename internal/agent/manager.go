package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/logging"
)

// ContextParams identifies and configures the context for one agent action.
type ContextParams struct {
	AgentID      string
	ActionID     string
	Owner        *domain.OwnerRef
	Instructions string
	Options      map[string]any
	TraceID      string
}

// ContextManager owns the lifecycle of agent contexts: creation,
// owner-scoped reuse, message appends, and generation accounting.
type ContextManager struct {
	store ContextStore
	log   *logging.Logger
}

// NewContextManager creates a manager persisting through store.
func NewContextManager(store ContextStore, log *logging.Logger) *ContextManager {
	return &ContextManager{store: store, log: log.Sub("contexts")}
}

func validateParams(p ContextParams) error {
	if strings.TrimSpace(p.AgentID) == "" {
		return &ValidationError{Field: "agentId", Reason: "required"}
	}
	if strings.TrimSpace(p.ActionID) == "" {
		return &ValidationError{Field: "actionId", Reason: "required"}
	}
	if p.Owner != nil && p.Owner.Type != "" && p.Owner.ID == "" {
		return &ValidationError{Field: "owner.id", Reason: "required when owner.type is set"}
	}
	return nil
}

func contextFromParams(p ContextParams) *domain.Context {
	traceID := p.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &domain.Context{
		AgentID:      p.AgentID,
		ActionID:     p.ActionID,
		Owner:        p.Owner,
		Instructions: p.Instructions,
		Options:      p.Options,
		TraceID:      traceID,
	}
}

// CreateContext always creates a fresh context for the given params.
func (m *ContextManager) CreateContext(ctx context.Context, p ContextParams) (*domain.Context, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	c := contextFromParams(p)
	if err := m.store.CreateContext(ctx, c); err != nil {
		return nil, err
	}
	m.log.Debug().Str("context", c.ID).Str("agent", c.AgentID).Str("action", c.ActionID).
		Msg("context created")
	return c, nil
}

// LoadOrCreateContext returns the existing context for (owner, agent,
// action) or creates one. Contexts without an owner are always fresh.
func (m *ContextManager) LoadOrCreateContext(ctx context.Context, p ContextParams) (*domain.Context, error) {
	if err := validateParams(p); err != nil {
		return nil, err
	}
	c, created, err := m.store.LoadOrCreateContext(ctx, contextFromParams(p))
	if err != nil {
		return nil, err
	}
	m.log.Debug().Str("context", c.ID).Bool("created", created).Msg("context bound")
	return c, nil
}

// GetContext loads a context with its full audit trail.
func (m *ContextManager) GetContext(ctx context.Context, id string) (*domain.Context, error) {
	return m.store.GetContext(ctx, id)
}

// AppendMessage validates and appends one conversation turn. The message's
// position is assigned by the store.
func (m *ContextManager) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ContextID == "" {
		return &ContextNotLoadedError{Op: "append message"}
	}
	if !domain.ValidRole(msg.Role) {
		return &ValidationError{Field: "role", Reason: "must be system, user, assistant, or tool"}
	}
	if msg.Content == "" && len(msg.ContentParts) == 0 {
		return &ValidationError{Field: "content", Reason: "required"}
	}
	return m.store.AppendMessage(ctx, msg)
}

// MarkInProgress transitions a context to in_progress.
func (m *ContextManager) MarkInProgress(ctx context.Context, id string) error {
	return m.store.UpdateContextStatus(ctx, id, domain.ContextInProgress)
}

// MarkCompleted transitions a context to completed.
func (m *ContextManager) MarkCompleted(ctx context.Context, id string) error {
	return m.store.UpdateContextStatus(ctx, id, domain.ContextCompleted)
}

// MarkFailed transitions a context to failed.
func (m *ContextManager) MarkFailed(ctx context.Context, id string) error {
	return m.store.UpdateContextStatus(ctx, id, domain.ContextFailed)
}

// RecordGeneration persists a finished model response: the assistant message
// it produced, then the generation row linking back to that message. Returns
// the appended message.
func (m *ContextManager) RecordGeneration(ctx context.Context, contextID, provider string, resp *llm.CompletionResponse) (*domain.Message, error) {
	if contextID == "" {
		return nil, &ContextNotLoadedError{Op: "record generation"}
	}

	msg := &domain.Message{
		ContextID: contextID,
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	g := &domain.Generation{
		ContextID:         contextID,
		ProviderID:        resp.ID,
		Model:             resp.Model,
		FinishReason:      resp.FinishReason,
		InputTokens:       resp.Usage.InputTokens,
		OutputTokens:      resp.Usage.OutputTokens,
		TotalTokens:       resp.Usage.Total(),
		CachedTokens:      resp.Usage.CachedTokens,
		ReasoningTokens:   resp.Usage.ReasoningTokens,
		DurationMS:        resp.Duration.Milliseconds(),
		Status:            domain.GenerationCompleted,
		RawResponse:       resp.Raw,
		ResponseMessageID: msg.ID,
	}
	if err := m.store.InsertGeneration(ctx, g); err != nil {
		return nil, err
	}

	m.log.Debug().Str("context", contextID).Str("model", g.Model).
		Int("tokens", g.TotalTokens).Msg("generation recorded")
	return msg, nil
}

// RecordGenerationFailure persists a failed generation. No assistant message
// is created.
func (m *ContextManager) RecordGenerationFailure(ctx context.Context, contextID, provider, model, errMsg string, durationMS int64) error {
	if contextID == "" {
		return &ContextNotLoadedError{Op: "record generation failure"}
	}
	g := &domain.Generation{
		ContextID:    contextID,
		Model:        model,
		DurationMS:   durationMS,
		Status:       domain.GenerationFailed,
		ErrorMessage: errMsg,
	}
	return m.store.InsertGeneration(ctx, g)
}

// PromptPayload converts a context's stored conversation into the provider
// request shape: the system prompt (instructions plus any stored system
// messages) and the ordered non-system turns.
func (m *ContextManager) PromptPayload(c *domain.Context) (system string, msgs []llm.Message) {
	var sys []string
	if c.Instructions != "" {
		sys = append(sys, c.Instructions)
	}
	for _, dm := range c.Messages {
		if dm.Role == domain.RoleSystem {
			sys = append(sys, dm.Content)
			continue
		}
		lm := llm.Message{
			Role:       string(dm.Role),
			Content:    dm.Content,
			ToolCallID: dm.ToolCallID,
			Name:       dm.Name,
		}
		for _, p := range dm.ContentParts {
			lm.Parts = append(lm.Parts, llm.MessagePart{
				Type:     p.Type,
				Text:     p.Text,
				Data:     p.Data,
				MimeType: p.MimeType,
			})
		}
		msgs = append(msgs, lm)
	}
	return strings.Join(sys, "\n\n"), msgs
}
