package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/logging"
)

// Recorder wraps tools so every invocation is persisted as a ToolCall on the
// bound context. One recorder serves one agent run: bind the context, wrap
// the tools, execute. A tool wrapped twice by the same recorder is wrapped
// once; an unbound recorder passes executions through unrecorded.
type Recorder struct {
	store ContextStore
	log   *logging.Logger

	mu        sync.Mutex
	contextID string
}

// NewRecorder creates a recorder persisting through store.
func NewRecorder(store ContextStore, log *logging.Logger) *Recorder {
	return &Recorder{store: store, log: log.Sub("recorder")}
}

// BindContext attaches the recorder to a context. Subsequent tool
// executions are recorded against it.
func (r *Recorder) BindContext(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextID = contextID
}

// ContextID returns the bound context ID, or "" if unbound.
func (r *Recorder) ContextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextID
}

// Wrap returns a tool whose executions are recorded. Wrapping is idempotent:
// a tool already wrapped by this recorder is returned unchanged, so a double
// wrap never produces duplicate ToolCall rows.
func (r *Recorder) Wrap(t Tool) Tool {
	if rt, ok := t.(*recordedTool); ok && rt.rec == r {
		return t
	}
	return &recordedTool{Tool: t, rec: r}
}

// WrapRegistry returns a new registry containing every tool from reg wrapped
// for recording.
func (r *Recorder) WrapRegistry(reg *ToolRegistry) *ToolRegistry {
	wrapped := NewToolRegistry(r.log)
	for _, name := range reg.List() {
		t, err := reg.Get(name)
		if err != nil {
			continue
		}
		if err := wrapped.Register(r.Wrap(t)); err != nil {
			r.log.Warn().Err(err).Str("tool", name).Msg("skipping tool during wrap")
		}
	}
	return wrapped
}

// recordedTool decorates a Tool with audit-trail persistence.
type recordedTool struct {
	Tool
	rec *Recorder
}

// Execute records the invocation lifecycle around the inner tool. The inner
// tool's error is always returned unchanged; recording never swallows or
// replaces it. Persistence failures before execution abort the call so the
// audit trail cannot silently lose invocations.
func (t *recordedTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	contextID := t.rec.ContextID()
	if contextID == "" {
		return t.Tool.Execute(ctx, input)
	}

	tc := &domain.ToolCall{
		ContextID: contextID,
		Name:      t.Name(),
		Arguments: input,
	}
	if err := t.rec.store.AppendToolCall(ctx, tc); err != nil {
		return "", err
	}

	started := time.Now()
	if err := t.rec.store.StartToolCall(ctx, tc.ID, started); err != nil {
		return "", err
	}

	out, execErr := t.Tool.Execute(ctx, input)
	completed := time.Now()
	durationMS := completed.Sub(started).Milliseconds()

	if execErr != nil {
		if err := t.rec.store.FailToolCall(ctx, tc.ID, execErr.Error(), completed, durationMS); err != nil {
			t.rec.log.Error().Err(err).Int64("toolCall", tc.ID).Msg("failed to record tool failure")
		}
		return "", execErr
	}

	result, err := json.Marshal(out)
	if err != nil {
		result = nil
	}
	if err := t.rec.store.CompleteToolCall(ctx, tc.ID, result, completed, durationMS); err != nil {
		t.rec.log.Error().Err(err).Int64("toolCall", tc.ID).Msg("failed to record tool result")
	}
	return out, nil
}
