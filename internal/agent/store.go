package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quillhq/quill/internal/domain"
)

// ContextStore is the persistence surface the agent layer depends on. The
// store package provides SQLite and in-memory implementations.
type ContextStore interface {
	CreateContext(ctx context.Context, c *domain.Context) error
	LoadOrCreateContext(ctx context.Context, c *domain.Context) (*domain.Context, bool, error)
	FindContextByOwner(ctx context.Context, owner domain.OwnerRef, agentID, actionID string) (*domain.Context, error)
	GetContext(ctx context.Context, id string) (*domain.Context, error)
	ListContextsByOwner(ctx context.Context, owner domain.OwnerRef) ([]domain.Context, error)
	UpdateContextStatus(ctx context.Context, id string, status domain.ContextStatus) error
	DeleteContext(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *domain.Message) error

	AppendToolCall(ctx context.Context, tc *domain.ToolCall) error
	StartToolCall(ctx context.Context, id int64, startedAt time.Time) error
	CompleteToolCall(ctx context.Context, id int64, result json.RawMessage, completedAt time.Time, durationMS int64) error
	FailToolCall(ctx context.Context, id int64, errMsg string, completedAt time.Time, durationMS int64) error

	InsertGeneration(ctx context.Context, g *domain.Generation) error
}
