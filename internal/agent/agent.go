// Package agent runs one conversation turn against the chat service,
// executing the tool calls it requests until it produces a final answer.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/llm"
	"github.com/isaacphi/toolturn/internal/tools"
)

// ToolResolver turns plugin ids into the functions offered for a turn.
type ToolResolver interface {
	ResolveTools(ctx context.Context, ids []string) (*tools.ToolSet, error)
}

// TurnConfig holds the per-turn settings.
type TurnConfig struct {
	// MaxRoundTrips is the number of tool cycles allowed before the turn is
	// finished as truncated. Zero disables tool execution.
	MaxRoundTrips int
	Stream        bool
	Vendor        llm.Vendor
	// ToolTimeout bounds each invocation. Zero means no limit.
	ToolTimeout time.Duration
}

// Orchestrator starts turns. It is safe for concurrent use; every turn
// keeps its own state.
type Orchestrator struct {
	transport llm.Transport
	tools     ToolResolver
	logger    *slog.Logger
}

func New(transport llm.Transport, resolver ToolResolver, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{transport: transport, tools: resolver, logger: logger}
}

// StartTurn runs a turn in the background. messages is not modified.
func (o *Orchestrator) StartTurn(ctx context.Context, messages []domain.Message, toolIDs []string, cfg TurnConfig, h Handler) *Handle {
	if h == nil {
		h = HandlerFuncs{}
	}
	ctx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	handle := &Handle{ID: id, cancel: cancel, done: make(chan struct{})}
	t := &turn{
		id:       id,
		cfg:      cfg,
		handler:  h,
		messages: append([]domain.Message(nil), messages...),
		o:        o,
		logger:   o.logger.With("turn", id),
	}

	go func() {
		defer close(handle.done)
		defer cancel()
		handle.result = t.run(ctx, toolIDs)
	}()
	return handle
}

// Run is StartTurn followed by Wait.
func (o *Orchestrator) Run(ctx context.Context, messages []domain.Message, toolIDs []string, cfg TurnConfig, h Handler) Result {
	return o.StartTurn(ctx, messages, toolIDs, cfg, h).Wait()
}

type turn struct {
	id         string
	cfg        TurnConfig
	handler    Handler
	messages   []domain.Message
	toolset    *tools.ToolSet
	state      State
	roundTrips int
	o          *Orchestrator
	logger     *slog.Logger
}

func (t *turn) setState(s State) {
	t.logger.Debug("turn state", "from", t.state, "to", s)
	t.state = s
}

func (t *turn) result(final string, truncated bool, err error) Result {
	return Result{
		TurnID:     t.id,
		State:      t.state,
		Messages:   t.messages,
		Final:      final,
		Truncated:  truncated,
		RoundTrips: t.roundTrips,
		Err:        err,
	}
}

func (t *turn) cancelled(ctx context.Context) Result {
	t.setState(StateCancelled)
	t.logger.Info("turn cancelled", "round_trips", t.roundTrips)
	return t.result("", false, ctx.Err())
}

func (t *turn) run(ctx context.Context, toolIDs []string) Result {
	t.setState(StateIdle)

	if len(toolIDs) > 0 && t.o.tools != nil {
		set, err := t.o.tools.ResolveTools(ctx, toolIDs)
		if err != nil {
			if ctx.Err() != nil {
				return t.cancelled(ctx)
			}
			t.setState(StateErrored)
			t.handler.OnError(domain.KindOf(err), err)
			return t.result("", false, err)
		}
		t.toolset = set
	}

	for {
		t.setState(StateStreaming)
		content, calls, err := t.stream(ctx)
		if ctx.Err() != nil {
			return t.cancelled(ctx)
		}
		if err != nil {
			t.setState(StateErrored)
			t.logger.Error("turn failed", "error", err)
			t.handler.OnError(domain.KindOf(err), err)
			return t.result("", false, err)
		}

		if len(calls) == 0 || t.toolset.Len() == 0 {
			if len(calls) > 0 {
				t.logger.Warn("ignoring tool calls: no tools for this turn", "calls", len(calls))
			}
			return t.finish(content, false)
		}

		if t.roundTrips >= t.cfg.MaxRoundTrips {
			t.logger.Warn("tool round trip budget exhausted", "budget", t.cfg.MaxRoundTrips, "pending", len(calls))
			return t.finish(content, true)
		}

		t.setState(StateToolsPending)
		for _, call := range calls {
			t.handler.OnToolCallIssued(call)
		}

		t.setState(StateInvoking)
		results := t.invokeAll(ctx, calls)
		if ctx.Err() != nil {
			return t.cancelled(ctx)
		}

		t.messages = append(t.messages, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		for i, call := range calls {
			t.messages = append(t.messages, domain.NewToolMessage(call, results[i]))
		}
		t.roundTrips++
	}
}

func (t *turn) finish(final string, truncated bool) Result {
	t.messages = append(t.messages, domain.Message{Role: domain.RoleAssistant, Content: final})
	t.setState(StateDone)
	t.logger.Info("turn finished", "round_trips", t.roundTrips, "truncated", truncated)
	t.handler.OnFinish(final, truncated)
	return t.result(final, truncated, nil)
}

// stream runs one streaming phase and returns its answer text and the tool
// calls that were complete when it ended.
func (t *turn) stream(ctx context.Context) (string, []domain.FunctionCall, error) {
	req := llm.Request{Messages: t.messages, Stream: t.cfg.Stream}
	if t.toolset != nil {
		req.Tools = t.toolset.Schemas
	}

	src, err := t.o.transport.Send(ctx, req)
	if err != nil {
		return "", nil, err
	}
	dec := llm.NewDecoder(src, t.cfg.Vendor)
	defer dec.Close()
	stop := context.AfterFunc(ctx, func() { _ = dec.Close() })
	defer stop()

	acc := llm.NewAccumulator(t.logger)
	var content strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		ev, err := dec.Next()
		if err != nil {
			return "", nil, err
		}
		switch e := ev.(type) {
		case llm.ThinkingEvent:
			t.handler.OnThinking(e.Text)
		case llm.ContentEvent:
			content.WriteString(e.Text)
			t.handler.OnContent(e.Text)
		case llm.ToolFragmentEvent:
			acc.Add(e.Fragment)
		case llm.DoneEvent:
			return content.String(), acc.Calls(), nil
		}
	}
}
