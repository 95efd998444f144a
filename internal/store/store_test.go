package store

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/logging"
)

func testStore(t *testing.T) *ContextStore {
	t.Helper()
	log := logging.New(io.Discard, "silent")
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewContextStore(db, log)
}

func newTestContext() *domain.Context {
	return &domain.Context{
		AgentID:  "writing",
		ActionID: "improve",
		Owner:    &domain.OwnerRef{Type: "Page", ID: "page-1"},
	}
}

func TestCreateAndGetContext(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	c.Instructions = "Improve the writing."
	c.Options = map[string]any{"tone": "formal"}
	require.NoError(t, s.CreateContext(ctx, c))
	require.NotEmpty(t, c.ID)
	assert.Equal(t, domain.ContextPending, c.Status)

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, loaded.ID)
	assert.Equal(t, "writing", loaded.AgentID)
	assert.Equal(t, "improve", loaded.ActionID)
	require.NotNil(t, loaded.Owner)
	assert.Equal(t, "Page", loaded.Owner.Type)
	assert.Equal(t, "Improve the writing.", loaded.Instructions)
	assert.Equal(t, "formal", loaded.Options["tone"])
	assert.Empty(t, loaded.Messages)
}

func TestGetContextNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetContext(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadOrCreateContextReusesOwnerRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, created, err := s.LoadOrCreateContext(ctx, newTestContext())
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.LoadOrCreateContext(ctx, newTestContext())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// A different action gets its own context
	other := newTestContext()
	other.ActionID = "summarize"
	third, created, err := s.LoadOrCreateContext(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestLoadOrCreateContextWithoutOwnerAlwaysCreates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := &domain.Context{AgentID: "writing", ActionID: "improve"}
	b := &domain.Context{AgentID: "writing", ActionID: "improve"}

	_, created, err := s.LoadOrCreateContext(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = s.LoadOrCreateContext(ctx, b)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestLoadOrCreateContextConcurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _, err := s.LoadOrCreateContext(ctx, newTestContext())
			require.NoError(t, err)
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestAppendMessagePositionsAreGapless(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	for i, role := range []domain.Role{domain.RoleSystem, domain.RoleUser, domain.RoleAssistant} {
		m := &domain.Message{ContextID: c.ID, Role: role, Content: "msg"}
		require.NoError(t, s.AppendMessage(ctx, m))
		assert.Equal(t, i, m.Position)
		assert.NotZero(t, m.ID)
	}

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 3)
	for i, m := range loaded.Messages {
		assert.Equal(t, i, m.Position)
	}
}

func TestAppendMessageConcurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := &domain.Message{ContextID: c.ID, Role: domain.RoleUser, Content: "x"}
			require.NoError(t, s.AppendMessage(ctx, m))
		}()
	}
	wg.Wait()

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, n)
	for i, m := range loaded.Messages {
		assert.Equal(t, i, m.Position, "positions must be gapless and unique")
	}
}

func TestMessageContentParts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	m := &domain.Message{
		ContextID: c.ID,
		Role:      domain.RoleUser,
		ContentParts: []domain.ContentPart{
			{Type: "text", Text: "caption this"},
			{Type: "image", Data: "aGVsbG8=", MimeType: "image/png"},
		},
	}
	require.NoError(t, s.AppendMessage(ctx, m))

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 1)
	require.Len(t, loaded.Messages[0].ContentParts, 2)
	assert.Equal(t, "image/png", loaded.Messages[0].ContentParts[1].MimeType)
}

func TestToolCallLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	tc := &domain.ToolCall{
		ContextID: c.ID,
		Name:      "navigate",
		Arguments: json.RawMessage(`{"url":"https://example.com"}`),
	}
	require.NoError(t, s.AppendToolCall(ctx, tc))
	assert.Equal(t, domain.ToolCallPending, tc.Status)
	assert.Equal(t, 0, tc.Position)

	started := time.Now()
	require.NoError(t, s.StartToolCall(ctx, tc.ID, started))
	require.NoError(t, s.CompleteToolCall(ctx, tc.ID, json.RawMessage(`{"title":"Example"}`), started.Add(50*time.Millisecond), 50))

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.ToolCalls, 1)
	got := loaded.ToolCalls[0]
	assert.Equal(t, domain.ToolCallCompleted, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, int64(50), got.DurationMS)
	assert.JSONEq(t, `{"title":"Example"}`, string(got.Result))
}

func TestToolCallFailure(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	tc := &domain.ToolCall{ContextID: c.ID, Name: "navigate"}
	require.NoError(t, s.AppendToolCall(ctx, tc))
	require.NoError(t, s.StartToolCall(ctx, tc.ID, time.Now()))
	require.NoError(t, s.FailToolCall(ctx, tc.ID, "connection refused", time.Now(), 12))

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	got := loaded.ToolCalls[0]
	assert.Equal(t, domain.ToolCallFailed, got.Status)
	assert.Equal(t, "connection refused", got.ErrorMessage)
	assert.Empty(t, got.Result)
}

func TestToolCallInvalidTransitions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	tc := &domain.ToolCall{ContextID: c.ID, Name: "navigate"}
	require.NoError(t, s.AppendToolCall(ctx, tc))

	// pending → completed is not allowed
	err := s.CompleteToolCall(ctx, tc.ID, nil, time.Now(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, s.StartToolCall(ctx, tc.ID, time.Now()))
	require.NoError(t, s.CompleteToolCall(ctx, tc.ID, nil, time.Now(), 0))

	// completed is terminal
	err = s.FailToolCall(ctx, tc.ID, "late failure", time.Now(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// unknown ID
	err = s.StartToolCall(ctx, 99999, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContextStatusTransitions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	require.NoError(t, s.UpdateContextStatus(ctx, c.ID, domain.ContextInProgress))
	require.NoError(t, s.UpdateContextStatus(ctx, c.ID, domain.ContextCompleted))

	err := s.UpdateContextStatus(ctx, c.ID, domain.ContextFailed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = s.UpdateContextStatus(ctx, "missing", domain.ContextInProgress)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInsertGeneration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	m := &domain.Message{ContextID: c.ID, Role: domain.RoleAssistant, Content: "done"}
	require.NoError(t, s.AppendMessage(ctx, m))

	g := &domain.Generation{
		ContextID:         c.ID,
		ProviderID:        "msg_123",
		Model:             "claude-sonnet-4-5",
		FinishReason:      "end_turn",
		InputTokens:       120,
		OutputTokens:      48,
		TotalTokens:       168,
		DurationMS:        900,
		RawResponse:       json.RawMessage(`{"id":"msg_123"}`),
		ResponseMessageID: m.ID,
	}
	require.NoError(t, s.InsertGeneration(ctx, g))
	assert.NotZero(t, g.ID)
	assert.Equal(t, domain.GenerationCompleted, g.Status)

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Generations, 1)
	assert.Equal(t, m.ID, loaded.Generations[0].ResponseMessageID)
	assert.Equal(t, 168, loaded.Generations[0].TotalTokens)
}

func TestFailedGenerationWithoutMessage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))

	g := &domain.Generation{
		ContextID:    c.ID,
		Status:       domain.GenerationFailed,
		ErrorMessage: "provider timeout",
	}
	require.NoError(t, s.InsertGeneration(ctx, g))

	loaded, err := s.GetContext(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Generations, 1)
	assert.Equal(t, domain.GenerationFailed, loaded.Generations[0].Status)
	assert.Zero(t, loaded.Generations[0].ResponseMessageID)
}

func TestDeleteContextCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := newTestContext()
	require.NoError(t, s.CreateContext(ctx, c))
	require.NoError(t, s.AppendMessage(ctx, &domain.Message{ContextID: c.ID, Role: domain.RoleUser, Content: "hi"}))
	tc := &domain.ToolCall{ContextID: c.ID, Name: "navigate"}
	require.NoError(t, s.AppendToolCall(ctx, tc))

	require.NoError(t, s.DeleteContext(ctx, c.ID))

	_, err := s.GetContext(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var count int
	require.NoError(t, s.db.sql.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, s.db.sql.QueryRow("SELECT COUNT(*) FROM tool_calls").Scan(&count))
	assert.Zero(t, count)

	assert.ErrorIs(t, s.DeleteContext(ctx, c.ID), domain.ErrNotFound)
}

func TestListContextsByOwner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := newTestContext()
	require.NoError(t, s.CreateContext(ctx, a))
	b := newTestContext()
	b.ActionID = "summarize"
	require.NoError(t, s.CreateContext(ctx, b))

	other := &domain.Context{AgentID: "writing", ActionID: "improve",
		Owner: &domain.OwnerRef{Type: "Page", ID: "page-2"}}
	require.NoError(t, s.CreateContext(ctx, other))

	list, err := s.ListContextsByOwner(ctx, domain.OwnerRef{Type: "Page", ID: "page-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	log := logging.New(io.Discard, "silent")
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, log)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening runs the migration loop again; nothing should reapply.
	db, err = Open(path, log)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}
