package agent

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/store"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func testManager() *ContextManager {
	return NewContextManager(store.NewMemoryContextStore(), testLogger())
}

func testParams() ContextParams {
	return ContextParams{
		AgentID:  "writing",
		ActionID: "improve",
		Owner:    &domain.OwnerRef{Type: "Page", ID: "page-1"},
	}
}

func TestCreateContextValidation(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	_, err := m.CreateContext(ctx, ContextParams{ActionID: "improve"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "agentId", verr.Field)

	_, err = m.CreateContext(ctx, ContextParams{AgentID: "writing"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "actionId", verr.Field)

	_, err = m.CreateContext(ctx, ContextParams{
		AgentID: "writing", ActionID: "improve",
		Owner: &domain.OwnerRef{Type: "Page"},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owner.id", verr.Field)
}

func TestCreateContextAssignsTrace(t *testing.T) {
	m := testManager()

	c, err := m.CreateContext(context.Background(), testParams())
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.NotEmpty(t, c.TraceID)
	assert.Equal(t, domain.ContextPending, c.Status)
}

func TestLoadOrCreateContextReuse(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	first, err := m.LoadOrCreateContext(ctx, testParams())
	require.NoError(t, err)
	second, err := m.LoadOrCreateContext(ctx, testParams())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAppendMessageValidation(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	c, err := m.CreateContext(ctx, testParams())
	require.NoError(t, err)

	err = m.AppendMessage(ctx, &domain.Message{Role: domain.RoleUser, Content: "hi"})
	var nlErr *ContextNotLoadedError
	assert.ErrorAs(t, err, &nlErr)

	err = m.AppendMessage(ctx, &domain.Message{ContextID: c.ID, Role: "narrator", Content: "hi"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)

	err = m.AppendMessage(ctx, &domain.Message{ContextID: c.ID, Role: domain.RoleUser})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	require.NoError(t, m.AppendMessage(ctx, &domain.Message{
		ContextID: c.ID, Role: domain.RoleUser, Content: "hi",
	}))
}

func TestRecordGeneration(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	c, err := m.CreateContext(ctx, testParams())
	require.NoError(t, err)

	resp := &llm.CompletionResponse{
		ID:           "msg_1",
		Content:      "Here is the improved text.",
		FinishReason: "end_turn",
		Model:        "claude-sonnet-4-5",
		Usage:        llm.Usage{InputTokens: 100, OutputTokens: 40},
		Duration:     750 * time.Millisecond,
		Raw:          json.RawMessage(`{"id":"msg_1"}`),
	}
	msg, err := m.RecordGeneration(ctx, c.ID, "claude", resp)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, msg.Role)

	loaded, err := m.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Generations, 1)
	g := loaded.Generations[0]
	assert.Equal(t, msg.ID, g.ResponseMessageID)
	assert.Equal(t, 140, g.TotalTokens)
	assert.Equal(t, int64(750), g.DurationMS)
	assert.Equal(t, domain.GenerationCompleted, g.Status)
}

func TestRecordGenerationFailure(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	c, err := m.CreateContext(ctx, testParams())
	require.NoError(t, err)

	require.NoError(t, m.RecordGenerationFailure(ctx, c.ID, "claude", "claude-sonnet-4-5", "overloaded", 120))

	loaded, err := m.GetContext(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Messages, "failed generations produce no assistant message")
	require.Len(t, loaded.Generations, 1)
	assert.Equal(t, domain.GenerationFailed, loaded.Generations[0].Status)
	assert.Equal(t, "overloaded", loaded.Generations[0].ErrorMessage)
}

func TestPromptPayload(t *testing.T) {
	m := testManager()
	ctx := context.Background()

	p := testParams()
	p.Instructions = "You are a writing assistant."
	c, err := m.CreateContext(ctx, p)
	require.NoError(t, err)

	require.NoError(t, m.AppendMessage(ctx, &domain.Message{
		ContextID: c.ID, Role: domain.RoleSystem, Content: "Keep the author's voice.",
	}))
	require.NoError(t, m.AppendMessage(ctx, &domain.Message{
		ContextID: c.ID, Role: domain.RoleUser, Content: "Improve this paragraph.",
	}))
	require.NoError(t, m.AppendMessage(ctx, &domain.Message{
		ContextID: c.ID, Role: domain.RoleAssistant, Content: "Done.",
	}))

	loaded, err := m.GetContext(ctx, c.ID)
	require.NoError(t, err)

	system, msgs := m.PromptPayload(loaded)
	assert.Contains(t, system, "You are a writing assistant.")
	assert.Contains(t, system, "Keep the author's voice.")
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
}
