package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/logging"
)

// timeFormat is how timestamps are stored in SQLite.
const timeFormat = time.RFC3339Nano

// ContextStore persists agent contexts and their child records.
type ContextStore struct {
	db  *DB
	log *logging.Logger
}

// NewContextStore creates a ContextStore backed by db.
func NewContextStore(db *DB, log *logging.Logger) *ContextStore {
	return &ContextStore{db: db, log: log.Sub("contexts")}
}

// CreateContext inserts a new context. The ID is generated if empty and the
// status defaults to pending.
func (s *ContextStore) CreateContext(ctx context.Context, c *domain.Context) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.ContextPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	var ownerType, ownerID string
	if c.Owner != nil {
		ownerType = c.Owner.Type
		ownerID = c.Owner.ID
	}

	options, err := marshalJSONText(c.Options)
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO contexts (id, agent_id, action_id, owner_type, owner_id,
			instructions, options, status, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AgentID, c.ActionID, ownerType, ownerID,
		c.Instructions, options, string(c.Status), c.TraceID,
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return fmt.Errorf("inserting context: %w", err)
	}
	return nil
}

// FindContextByOwner returns the context bound to (owner, agentID, actionID),
// children included, or domain.ErrNotFound.
func (s *ContextStore) FindContextByOwner(ctx context.Context, owner domain.OwnerRef, agentID, actionID string) (*domain.Context, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id FROM contexts
		WHERE owner_type = ? AND owner_id = ? AND agent_id = ? AND action_id = ?`,
		owner.Type, owner.ID, agentID, actionID)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("finding context: %w", err)
	}
	return s.GetContext(ctx, id)
}

// LoadOrCreateContext finds the context for c's owner/agent/action or creates
// it. A concurrent create for the same key loses the race on the unique owner
// index and falls back to loading the winner's row. Returns the context and
// whether it was freshly created.
func (s *ContextStore) LoadOrCreateContext(ctx context.Context, c *domain.Context) (*domain.Context, bool, error) {
	if c.Owner == nil || c.Owner.Type == "" {
		if err := s.CreateContext(ctx, c); err != nil {
			return nil, false, err
		}
		return c, true, nil
	}

	existing, err := s.FindContextByOwner(ctx, *c.Owner, c.AgentID, c.ActionID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	if err := s.CreateContext(ctx, c); err != nil {
		if isUniqueViolation(err) {
			existing, err := s.FindContextByOwner(ctx, *c.Owner, c.AgentID, c.ActionID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return c, true, nil
}

// GetContext loads a context with its messages, tool calls, and generations
// ordered by position.
func (s *ContextStore) GetContext(ctx context.Context, id string) (*domain.Context, error) {
	row := s.db.sql.QueryRowContext(ctx, `
		SELECT id, agent_id, action_id, owner_type, owner_id, instructions,
			options, status, trace_id, created_at, updated_at
		FROM contexts WHERE id = ?`, id)

	c, err := scanContext(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("loading context: %w", err)
	}

	if c.Messages, err = s.listMessages(ctx, id); err != nil {
		return nil, err
	}
	if c.ToolCalls, err = s.listToolCalls(ctx, id); err != nil {
		return nil, err
	}
	if c.Generations, err = s.listGenerations(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// ListContextsByOwner returns all contexts attached to an owner, newest first.
func (s *ContextStore) ListContextsByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Context, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, agent_id, action_id, owner_type, owner_id, instructions,
			options, status, trace_id, created_at, updated_at
		FROM contexts WHERE owner_type = ? AND owner_id = ?
		ORDER BY created_at DESC`, owner.Type, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("listing contexts: %w", err)
	}
	defer rows.Close()

	var out []domain.Context
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning context: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateContextStatus transitions a context's status, enforcing the
// lifecycle state machine.
func (s *ContextStore) UpdateContextStatus(ctx context.Context, id string, status domain.ContextStatus) error {
	var current string
	err := s.db.sql.QueryRowContext(ctx, "SELECT status FROM contexts WHERE id = ?", id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading context status: %w", err)
	}
	if !domain.ContextStatus(current).CanTransitionTo(status) {
		return fmt.Errorf("%w: context %s → %s", domain.ErrInvalidTransition, current, status)
	}

	_, err = s.db.sql.ExecContext(ctx,
		"UPDATE contexts SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(status), time.Now().UTC().Format(timeFormat), id, current)
	if err != nil {
		return fmt.Errorf("updating context status: %w", err)
	}
	return nil
}

// DeleteContext removes a context and, via cascade, all of its children.
func (s *ContextStore) DeleteContext(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, "DELETE FROM contexts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting context: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message at the next position in its context. The
// position is assigned inside the INSERT so concurrent appends never leave a
// gap or collide. The message's ID and Position are populated on return.
func (s *ContextStore) AppendMessage(ctx context.Context, m *domain.Message) error {
	parts, err := marshalJSONText(m.ContentParts)
	if err != nil {
		return fmt.Errorf("encoding content parts: %w", err)
	}
	m.CreatedAt = time.Now().UTC()

	row := s.db.sql.QueryRowContext(ctx, `
		INSERT INTO messages (context_id, role, content, content_parts,
			position, tool_call_id, name, function_name, created_at)
		SELECT ?, ?, ?, ?, COALESCE(MAX(position) + 1, 0), ?, ?, ?, ?
		FROM messages WHERE context_id = ?
		RETURNING id, position`,
		m.ContextID, string(m.Role), m.Content, parts,
		m.ToolCallID, m.Name, m.FunctionName, m.CreatedAt.Format(timeFormat),
		m.ContextID)

	if err := row.Scan(&m.ID, &m.Position); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// AppendToolCall inserts a pending tool call at the next position in its
// context. The ID, Position, and Status are populated on return.
func (s *ContextStore) AppendToolCall(ctx context.Context, tc *domain.ToolCall) error {
	if tc.Status == "" {
		tc.Status = domain.ToolCallPending
	}
	tc.CreatedAt = time.Now().UTC()

	row := s.db.sql.QueryRowContext(ctx, `
		INSERT INTO tool_calls (context_id, name, arguments, status,
			error_message, position, external_id, created_at)
		SELECT ?, ?, ?, ?, ?, COALESCE(MAX(position) + 1, 0), ?, ?
		FROM tool_calls WHERE context_id = ?
		RETURNING id, position`,
		tc.ContextID, tc.Name, rawJSONText(tc.Arguments), string(tc.Status),
		tc.ErrorMessage, tc.ExternalID, tc.CreatedAt.Format(timeFormat),
		tc.ContextID)

	if err := row.Scan(&tc.ID, &tc.Position); err != nil {
		return fmt.Errorf("appending tool call: %w", err)
	}
	return nil
}

// StartToolCall marks a pending tool call as running.
func (s *ContextStore) StartToolCall(ctx context.Context, id int64, startedAt time.Time) error {
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE tool_calls SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.ToolCallRunning), startedAt.UTC().Format(timeFormat),
		id, string(domain.ToolCallPending))
	if err != nil {
		return fmt.Errorf("starting tool call: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// CompleteToolCall marks a running tool call as completed with its result.
func (s *ContextStore) CompleteToolCall(ctx context.Context, id int64, result json.RawMessage, completedAt time.Time, durationMS int64) error {
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE tool_calls SET status = ?, result = ?, completed_at = ?, duration_ms = ?
		WHERE id = ? AND status = ?`,
		string(domain.ToolCallCompleted), rawJSONText(result),
		completedAt.UTC().Format(timeFormat), durationMS,
		id, string(domain.ToolCallRunning))
	if err != nil {
		return fmt.Errorf("completing tool call: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// FailToolCall marks a running tool call as failed with the error message.
func (s *ContextStore) FailToolCall(ctx context.Context, id int64, errMsg string, completedAt time.Time, durationMS int64) error {
	res, err := s.db.sql.ExecContext(ctx, `
		UPDATE tool_calls SET status = ?, error_message = ?, completed_at = ?, duration_ms = ?
		WHERE id = ? AND status = ?`,
		string(domain.ToolCallFailed), errMsg,
		completedAt.UTC().Format(timeFormat), durationMS,
		id, string(domain.ToolCallRunning))
	if err != nil {
		return fmt.Errorf("failing tool call: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// checkTransition maps a zero-row tool-call update to the right error.
func (s *ContextStore) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := s.db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_calls WHERE id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: tool call %d", domain.ErrInvalidTransition, id)
}

// InsertGeneration records a completed or failed model generation. The ID is
// populated on return.
func (s *ContextStore) InsertGeneration(ctx context.Context, g *domain.Generation) error {
	if g.Status == "" {
		g.Status = domain.GenerationCompleted
	}
	g.CreatedAt = time.Now().UTC()

	var responseMessageID any
	if g.ResponseMessageID != 0 {
		responseMessageID = g.ResponseMessageID
	}

	row := s.db.sql.QueryRowContext(ctx, `
		INSERT INTO generations (context_id, provider_id, model, finish_reason,
			input_tokens, output_tokens, total_tokens, cached_tokens,
			reasoning_tokens, duration_ms, status, error_message,
			raw_request, raw_response, response_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		g.ContextID, g.ProviderID, g.Model, g.FinishReason,
		g.InputTokens, g.OutputTokens, g.TotalTokens, g.CachedTokens,
		g.ReasoningTokens, g.DurationMS, string(g.Status), g.ErrorMessage,
		rawJSONText(g.RawRequest), rawJSONText(g.RawResponse),
		responseMessageID, g.CreatedAt.Format(timeFormat))

	if err := row.Scan(&g.ID); err != nil {
		return fmt.Errorf("inserting generation: %w", err)
	}
	return nil
}

func (s *ContextStore) listMessages(ctx context.Context, contextID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, context_id, role, content, content_parts, position,
			tool_call_id, name, function_name, created_at
		FROM messages WHERE context_id = ? ORDER BY position`, contextID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var role, createdAt string
		var content, parts sql.NullString
		if err := rows.Scan(&m.ID, &m.ContextID, &role, &content, &parts,
			&m.Position, &m.ToolCallID, &m.Name, &m.FunctionName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.Content = content.String
		if parts.Valid && parts.String != "" {
			if err := json.Unmarshal([]byte(parts.String), &m.ContentParts); err != nil {
				return nil, fmt.Errorf("decoding content parts: %w", err)
			}
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *ContextStore) listToolCalls(ctx context.Context, contextID string) ([]domain.ToolCall, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, context_id, name, arguments, status, started_at,
			completed_at, duration_ms, result, error_message, position,
			external_id, created_at
		FROM tool_calls WHERE context_id = ? ORDER BY position`, contextID)
	if err != nil {
		return nil, fmt.Errorf("listing tool calls: %w", err)
	}
	defer rows.Close()

	var out []domain.ToolCall
	for rows.Next() {
		var tc domain.ToolCall
		var status, createdAt string
		var args, result, startedAt, completedAt sql.NullString
		var durationMS sql.NullInt64
		if err := rows.Scan(&tc.ID, &tc.ContextID, &tc.Name, &args, &status,
			&startedAt, &completedAt, &durationMS, &result, &tc.ErrorMessage,
			&tc.Position, &tc.ExternalID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		tc.Status = domain.ToolCallStatus(status)
		if args.Valid {
			tc.Arguments = json.RawMessage(args.String)
		}
		if result.Valid {
			tc.Result = json.RawMessage(result.String)
		}
		tc.StartedAt = parseTimePtr(startedAt)
		tc.CompletedAt = parseTimePtr(completedAt)
		tc.DurationMS = durationMS.Int64
		tc.CreatedAt = parseTime(createdAt)
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *ContextStore) listGenerations(ctx context.Context, contextID string) ([]domain.Generation, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, context_id, provider_id, model, finish_reason,
			input_tokens, output_tokens, total_tokens, cached_tokens,
			reasoning_tokens, duration_ms, status, error_message,
			raw_request, raw_response, response_message_id, created_at
		FROM generations WHERE context_id = ? ORDER BY id`, contextID)
	if err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}
	defer rows.Close()

	var out []domain.Generation
	for rows.Next() {
		var g domain.Generation
		var status, createdAt string
		var rawReq, rawResp sql.NullString
		var responseMessageID sql.NullInt64
		if err := rows.Scan(&g.ID, &g.ContextID, &g.ProviderID, &g.Model,
			&g.FinishReason, &g.InputTokens, &g.OutputTokens, &g.TotalTokens,
			&g.CachedTokens, &g.ReasoningTokens, &g.DurationMS, &status,
			&g.ErrorMessage, &rawReq, &rawResp, &responseMessageID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		g.Status = domain.GenerationStatus(status)
		if rawReq.Valid {
			g.RawRequest = json.RawMessage(rawReq.String)
		}
		if rawResp.Valid {
			g.RawResponse = json.RawMessage(rawResp.String)
		}
		g.ResponseMessageID = responseMessageID.Int64
		g.CreatedAt = parseTime(createdAt)
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContext(row rowScanner) (*domain.Context, error) {
	var c domain.Context
	var ownerType, ownerID, status, createdAt, updatedAt string
	var options sql.NullString
	if err := row.Scan(&c.ID, &c.AgentID, &c.ActionID, &ownerType, &ownerID,
		&c.Instructions, &options, &status, &c.TraceID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if ownerType != "" {
		c.Owner = &domain.OwnerRef{Type: ownerType, ID: ownerID}
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &c.Options); err != nil {
			return nil, fmt.Errorf("decoding options: %w", err)
		}
	}
	c.Status = domain.ContextStatus(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// marshalJSONText encodes v as JSON text for storage, mapping empty values
// to NULL.
func marshalJSONText(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.ContentPart:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// rawJSONText converts a raw JSON value to a TEXT column value, mapping
// empty to NULL.
func rawJSONText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Rows written by SQLite defaults use datetime('now')
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
