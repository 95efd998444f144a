package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/domain"
)

// MemoryContextStore is an in-memory ContextStore. It enforces the same
// invariants as the SQLite store (gapless positions, status machines,
// one context per owner/agent/action) and is safe for concurrent use.
type MemoryContextStore struct {
	mu       sync.Mutex
	contexts map[string]*domain.Context
	nextID   int64
}

// NewMemoryContextStore creates an empty in-memory store.
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]*domain.Context)}
}

func (s *MemoryContextStore) CreateContext(_ context.Context, c *domain.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(c)
}

func (s *MemoryContextStore) createLocked(c *domain.Context) error {
	if c.Owner != nil && c.Owner.Type != "" {
		if s.findLocked(*c.Owner, c.AgentID, c.ActionID) != nil {
			return fmt.Errorf("context for %s/%s %s.%s: unique constraint violated",
				c.Owner.Type, c.Owner.ID, c.AgentID, c.ActionID)
		}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.ContextPending
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := *c
	s.contexts[c.ID] = &stored
	return nil
}

func (s *MemoryContextStore) findLocked(owner domain.OwnerRef, agentID, actionID string) *domain.Context {
	for _, c := range s.contexts {
		if c.Owner != nil && *c.Owner == owner && c.AgentID == agentID && c.ActionID == actionID {
			return c
		}
	}
	return nil
}

func (s *MemoryContextStore) FindContextByOwner(_ context.Context, owner domain.OwnerRef, agentID, actionID string) (*domain.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(owner, agentID, actionID); c != nil {
		return copyContext(c), nil
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryContextStore) LoadOrCreateContext(_ context.Context, c *domain.Context) (*domain.Context, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Owner != nil && c.Owner.Type != "" {
		if existing := s.findLocked(*c.Owner, c.AgentID, c.ActionID); existing != nil {
			return copyContext(existing), false, nil
		}
	}
	if err := s.createLocked(c); err != nil {
		return nil, false, err
	}
	return copyContext(s.contexts[c.ID]), true, nil
}

func (s *MemoryContextStore) GetContext(_ context.Context, id string) (*domain.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyContext(c), nil
}

func (s *MemoryContextStore) ListContextsByOwner(_ context.Context, owner domain.OwnerRef) ([]domain.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Context
	for _, c := range s.contexts {
		if c.Owner != nil && *c.Owner == owner {
			out = append(out, *copyContext(c))
		}
	}
	return out, nil
}

func (s *MemoryContextStore) UpdateContextStatus(_ context.Context, id string, status domain.ContextStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !c.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: context %s → %s", domain.ErrInvalidTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryContextStore) DeleteContext(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.contexts, id)
	return nil
}

func (s *MemoryContextStore) AppendMessage(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[m.ContextID]
	if !ok {
		return domain.ErrNotFound
	}
	s.nextID++
	m.ID = s.nextID
	m.Position = len(c.Messages)
	m.CreatedAt = time.Now().UTC()
	c.Messages = append(c.Messages, *m)
	return nil
}

func (s *MemoryContextStore) AppendToolCall(_ context.Context, tc *domain.ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[tc.ContextID]
	if !ok {
		return domain.ErrNotFound
	}
	if tc.Status == "" {
		tc.Status = domain.ToolCallPending
	}
	s.nextID++
	tc.ID = s.nextID
	tc.Position = len(c.ToolCalls)
	tc.CreatedAt = time.Now().UTC()
	c.ToolCalls = append(c.ToolCalls, *tc)
	return nil
}

func (s *MemoryContextStore) StartToolCall(_ context.Context, id int64, startedAt time.Time) error {
	return s.updateToolCall(id, domain.ToolCallRunning, func(tc *domain.ToolCall) {
		t := startedAt.UTC()
		tc.StartedAt = &t
	})
}

func (s *MemoryContextStore) CompleteToolCall(_ context.Context, id int64, result json.RawMessage, completedAt time.Time, durationMS int64) error {
	return s.updateToolCall(id, domain.ToolCallCompleted, func(tc *domain.ToolCall) {
		t := completedAt.UTC()
		tc.CompletedAt = &t
		tc.Result = result
		tc.DurationMS = durationMS
	})
}

func (s *MemoryContextStore) FailToolCall(_ context.Context, id int64, errMsg string, completedAt time.Time, durationMS int64) error {
	return s.updateToolCall(id, domain.ToolCallFailed, func(tc *domain.ToolCall) {
		t := completedAt.UTC()
		tc.CompletedAt = &t
		tc.ErrorMessage = errMsg
		tc.DurationMS = durationMS
	})
}

func (s *MemoryContextStore) updateToolCall(id int64, next domain.ToolCallStatus, apply func(*domain.ToolCall)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contexts {
		for i := range c.ToolCalls {
			tc := &c.ToolCalls[i]
			if tc.ID != id {
				continue
			}
			if !tc.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: tool call %d", domain.ErrInvalidTransition, id)
			}
			tc.Status = next
			apply(tc)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *MemoryContextStore) InsertGeneration(_ context.Context, g *domain.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[g.ContextID]
	if !ok {
		return domain.ErrNotFound
	}
	if g.Status == "" {
		g.Status = domain.GenerationCompleted
	}
	s.nextID++
	g.ID = s.nextID
	g.CreatedAt = time.Now().UTC()
	c.Generations = append(c.Generations, *g)
	return nil
}

func copyContext(c *domain.Context) *domain.Context {
	out := *c
	out.Messages = append([]domain.Message(nil), c.Messages...)
	out.ToolCalls = append([]domain.ToolCall(nil), c.ToolCalls...)
	out.Generations = append([]domain.Generation(nil), c.Generations...)
	return &out
}
