package assist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quillhq/quill/internal/agent"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/llm"
	"github.com/quillhq/quill/internal/logging"
	"github.com/quillhq/quill/internal/research"
	"github.com/quillhq/quill/internal/stream"
)

// maxToolTurns bounds the tool round-trip loop within one invocation.
const maxToolTurns = 8

// Request is one user-triggered assistant invocation.
type Request struct {
	ActionType string `json:"action_type"`
	Params     Params `json:"params"`
}

// Result is the outcome of a synchronous dispatch.
type Result struct {
	ContextID   string `json:"context_id"`
	Content     string `json:"content"`
	ResponseKey string `json:"-"`
}

// Dispatcher runs assistant actions through a fixed pipeline: validate the
// parameters, bind an audit context, submit the prompt, stream output and
// run tool round-trips, finalize. Synchronous and streamed dispatches reach
// identical persisted state.
type Dispatcher struct {
	store    agent.ContextStore
	contexts *agent.ContextManager
	llms     *llm.Registry
	hub      *stream.Hub
	pool     *research.SessionPool
	actions  map[string]*Action
	agents   config.AgentsConfig
	maxChars int
	log      *logging.Logger
}

// NewDispatcher wires a dispatcher. pool may be nil when the research action
// is not served.
func NewDispatcher(store agent.ContextStore, llms *llm.Registry, hub *stream.Hub, pool *research.SessionPool, agents config.AgentsConfig, researchCfg config.ResearchConfig, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		contexts: agent.NewContextManager(store, log),
		llms:     llms,
		hub:      hub,
		pool:     pool,
		actions:  Actions(),
		agents:   agents,
		maxChars: researchCfg.MaxContentChars,
		log:      log.Sub("dispatch"),
	}
}

// invocation is the per-dispatch pipeline state.
type invocation struct {
	action  *Action
	params  *Params
	context *domain.Context
	b       *stream.Broadcaster
	client  llm.Client
	tools   *agent.ToolRegistry
	release func()
}

// Dispatch runs an action synchronously: the caller blocks until the final
// response is persisted. No broadcasts occur.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	inv, err := d.validate(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	if err := d.bindContext(ctx, inv); err != nil {
		return nil, err
	}
	content, err := d.run(ctx, inv)
	if err != nil {
		return nil, err
	}
	return &Result{
		ContextID:   inv.context.ID,
		Content:     content,
		ResponseKey: inv.action.ResponseKey,
	}, nil
}

// DispatchStream validates and binds synchronously, then runs the rest of
// the pipeline in the background. The returned stream ID is live before the
// first chunk is published.
func (d *Dispatcher) DispatchStream(ctx context.Context, req Request) (string, error) {
	inv, err := d.validate(req)
	if err != nil {
		return "", err
	}

	if err := d.bindContext(ctx, inv); err != nil {
		return "", err
	}

	streamID := stream.NewStreamID()
	inv.b = stream.NewBroadcaster(d.hub, streamID)

	go func() {
		// Detached from the HTTP request; bounded by its own timeout.
		runCtx, cancel := context.WithTimeout(context.Background(), d.timeout())
		defer cancel()
		if _, err := d.run(runCtx, inv); err != nil {
			d.log.Warn().Err(err).Str("context", inv.context.ID).
				Str("action", inv.action.Name).Msg("streamed dispatch failed")
		}
	}()

	return streamID, nil
}

// validate resolves the action and checks its parameters.
func (d *Dispatcher) validate(req Request) (*invocation, error) {
	action, ok := d.actions[req.ActionType]
	if !ok {
		return nil, &InvalidParametersError{
			Param:  "action_type",
			Reason: fmt.Sprintf("unknown action %q", req.ActionType),
		}
	}
	params := req.Params
	if err := action.Validate(&params); err != nil {
		return nil, err
	}
	return &invocation{action: action, params: &params}, nil
}

// bindContext creates or loads the audit context and records the user turn.
func (d *Dispatcher) bindContext(ctx context.Context, inv *invocation) error {
	client, err := d.llms.Resolve(d.modelFor(inv.action))
	if err != nil {
		return &llm.ProviderError{Provider: "registry", Message: err.Error()}
	}
	inv.client = client

	p := agent.ContextParams{
		AgentID:      inv.action.AgentID,
		ActionID:     inv.action.Name,
		Owner:        inv.params.Owner,
		Instructions: d.instructionsFor(inv.action),
		Options:      map[string]any{"action": inv.action.Name},
	}

	var c *domain.Context
	if inv.params.Owner != nil {
		c, err = d.contexts.LoadOrCreateContext(ctx, p)
	} else {
		c, err = d.contexts.CreateContext(ctx, p)
	}
	if err != nil {
		return err
	}
	inv.context = c

	// From here the context row exists; any error must leave it failed, not
	// stranded in pending.
	content, parts := inv.action.Prompt(inv.params)
	if err := d.contexts.AppendMessage(ctx, &domain.Message{
		ContextID:    c.ID,
		Role:         domain.RoleUser,
		Content:      content,
		ContentParts: parts,
	}); err != nil {
		return d.fail(ctx, inv, err)
	}
	if err := d.contexts.MarkInProgress(ctx, c.ID); err != nil {
		return d.fail(ctx, inv, err)
	}
	return nil
}

// run executes the submit/stream/finalize stages. Any error marks the
// context failed and publishes the terminal error event before returning.
func (d *Dispatcher) run(ctx context.Context, inv *invocation) (string, error) {
	if err := d.prepareTools(ctx, inv); err != nil {
		return "", d.fail(ctx, inv, err)
	}
	if inv.release != nil {
		defer inv.release()
	}

	content, err := d.generate(ctx, inv)
	if err != nil {
		return "", d.fail(ctx, inv, err)
	}

	if err := d.contexts.MarkCompleted(ctx, inv.context.ID); err != nil {
		return "", d.fail(ctx, inv, err)
	}
	// Only after the result is durably recorded
	inv.b.Done()
	return content, nil
}

// prepareTools checks out a research session and builds the recorded tool
// registry for tool-capable actions.
func (d *Dispatcher) prepareTools(ctx context.Context, inv *invocation) error {
	if !inv.action.UsesTools {
		return nil
	}
	if d.pool == nil {
		return fmt.Errorf("action %q needs tools but no session pool is configured", inv.action.Name)
	}

	session, err := d.pool.Checkout(ctx)
	if err != nil {
		return fmt.Errorf("waiting for research session: %w", err)
	}
	inv.release = func() { d.pool.Return(session) }

	recorder := agent.NewRecorder(d.store, d.log)
	recorder.BindContext(inv.context.ID)

	registry := agent.NewToolRegistry(d.log)
	for _, t := range research.SessionTools(session, d.maxChars) {
		if err := registry.Register(recorder.Wrap(t)); err != nil {
			return err
		}
	}
	inv.tools = registry
	return nil
}

// generate drives the prompt/tool loop until the model produces a final
// answer.
func (d *Dispatcher) generate(ctx context.Context, inv *invocation) (string, error) {
	loaded, err := d.contexts.GetContext(ctx, inv.context.ID)
	if err != nil {
		return "", err
	}
	system, msgs := d.contexts.PromptPayload(loaded)

	for turn := 0; turn < maxToolTurns; turn++ {
		req := llm.CompletionRequest{
			System:      system,
			Messages:    msgs,
			MaxTokens:   d.maxTokensFor(inv.action),
			Temperature: d.temperatureFor(inv.action),
		}
		if inv.tools != nil {
			req.Tools = inv.tools.Definitions()
			req.ToolChoice = "auto"
		}

		resp, err := d.complete(ctx, inv, req)
		if err != nil {
			return "", err
		}

		if _, err := d.contexts.RecordGeneration(ctx, inv.context.ID, inv.client.Name(), resp); err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		// A model may hallucinate tool calls even when the action offered
		// none; fail the invocation rather than dereference a nil registry.
		if inv.tools == nil {
			return "", &agent.UnknownToolError{Name: resp.ToolCalls[0].Name}
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			out, err := d.runTool(ctx, inv, tc)
			if err != nil {
				return "", err
			}
			if err := d.contexts.AppendMessage(ctx, &domain.Message{
				ContextID:    inv.context.ID,
				Role:         domain.RoleTool,
				Content:      out,
				ToolCallID:   tc.ID,
				Name:         tc.Name,
				FunctionName: tc.Name,
			}); err != nil {
				return "", err
			}
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Content:    out,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	return "", fmt.Errorf("model did not converge within %d tool turns", maxToolTurns)
}

// runTool executes one recorded tool call, publishing its status around the
// invocation.
func (d *Dispatcher) runTool(ctx context.Context, inv *invocation, tc llm.ToolCall) (string, error) {
	inv.b.ToolStatus(tc.Name, "running")
	out, err := inv.tools.Execute(ctx, tc.Name, tc.Input)
	if err != nil {
		inv.b.ToolStatus(tc.Name, "failed")
		return "", err
	}
	inv.b.ToolStatus(tc.Name, "completed")
	return out, nil
}

// complete runs one model completion, streamed when a broadcaster is bound.
func (d *Dispatcher) complete(ctx context.Context, inv *invocation, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	if inv.b.StreamID() == "" {
		resp, err := inv.client.Complete(ctx, req)
		if err != nil {
			return nil, d.mapProviderErr(ctx, err)
		}
		return resp, nil
	}

	req.Stream = true
	events, err := inv.client.Stream(ctx, req)
	if err != nil {
		return nil, d.mapProviderErr(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, d.mapProviderErr(ctx, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return nil, &llm.ProviderError{
					Provider: inv.client.Name(),
					Message:  "stream ended without a final response",
				}
			}
			switch ev.Type {
			case "delta":
				inv.b.Chunk(ev.Content)
			case "error":
				return nil, &llm.ProviderError{Provider: inv.client.Name(), Message: ev.Error}
			case "done":
				resp := ev.Response
				if resp.Duration == 0 {
					resp.Duration = time.Since(start)
				}
				return resp, nil
			}
		}
	}
}

// fail finalizes a failed invocation: the context is marked failed before
// the error event is published, and the pipeline error is returned for the
// caller to translate (never to crash on).
func (d *Dispatcher) fail(ctx context.Context, inv *invocation, cause error) error {
	// Persistence must survive an expired deadline
	persistCtx := context.WithoutCancel(ctx)

	var provErr *llm.ProviderError
	var timeoutErr *GenerationTimeoutError
	if errors.As(cause, &provErr) || errors.As(cause, &timeoutErr) {
		if err := d.contexts.RecordGenerationFailure(persistCtx, inv.context.ID,
			inv.client.Name(), d.modelFor(inv.action), cause.Error(), 0); err != nil {
			d.log.Error().Err(err).Str("context", inv.context.ID).Msg("recording generation failure")
		}
	}

	if err := d.contexts.MarkFailed(persistCtx, inv.context.ID); err != nil &&
		!errors.Is(err, domain.ErrInvalidTransition) {
		d.log.Error().Err(err).Str("context", inv.context.ID).Msg("marking context failed")
	}

	inv.b.Fail(cause.Error())

	d.log.Error().Err(cause).Str("context", inv.context.ID).
		Str("action", inv.action.Name).Msg("dispatch failed")
	return cause
}

// mapProviderErr converts deadline expiry into the timeout error kind.
func (d *Dispatcher) mapProviderErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &GenerationTimeoutError{Timeout: d.timeout()}
	}
	return err
}

func (d *Dispatcher) timeout() time.Duration {
	secs := d.agents.Defaults.TimeoutSeconds
	if secs <= 0 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

func (d *Dispatcher) entryFor(action *Action) config.AgentEntry {
	switch action.AgentID {
	case AgentWriting:
		return d.agents.Writing
	case AgentResearch:
		return d.agents.Research
	case AgentCaptioner:
		return d.agents.Captioner
	}
	return config.AgentEntry{}
}

func (d *Dispatcher) instructionsFor(action *Action) string {
	if e := d.entryFor(action); e.Instructions != "" {
		return e.Instructions
	}
	return action.Instructions
}

func (d *Dispatcher) modelFor(action *Action) string {
	if e := d.entryFor(action); e.Model != "" {
		return e.Model
	}
	return d.agents.Defaults.Model
}

func (d *Dispatcher) maxTokensFor(action *Action) int {
	if e := d.entryFor(action); e.MaxTokens > 0 {
		return e.MaxTokens
	}
	return d.agents.Defaults.MaxTokens
}

func (d *Dispatcher) temperatureFor(action *Action) *float64 {
	if e := d.entryFor(action); e.Temperature != nil {
		return e.Temperature
	}
	return d.agents.Defaults.Temperature
}
