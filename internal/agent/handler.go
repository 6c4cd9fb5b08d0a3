package agent

import "github.com/isaacphi/toolturn/internal/domain"

// Handler receives the progress of a turn. Calls are made synchronously from
// the turn's goroutine, in order, so a slow handler slows the turn down
// instead of buffering. OnFinish and OnError are mutually exclusive and
// neither is called for a cancelled turn.
type Handler interface {
	OnThinking(text string)
	OnContent(text string)
	OnToolCallIssued(call domain.FunctionCall)
	OnFinish(final string, truncated bool)
	OnError(kind domain.ErrorKind, err error)
}

// HandlerFuncs adapts optional functions to a Handler.
type HandlerFuncs struct {
	Thinking       func(text string)
	Content        func(text string)
	ToolCallIssued func(call domain.FunctionCall)
	Finish         func(final string, truncated bool)
	Error          func(kind domain.ErrorKind, err error)
}

func (h HandlerFuncs) OnThinking(text string) {
	if h.Thinking != nil {
		h.Thinking(text)
	}
}

func (h HandlerFuncs) OnContent(text string) {
	if h.Content != nil {
		h.Content(text)
	}
}

func (h HandlerFuncs) OnToolCallIssued(call domain.FunctionCall) {
	if h.ToolCallIssued != nil {
		h.ToolCallIssued(call)
	}
}

func (h HandlerFuncs) OnFinish(final string, truncated bool) {
	if h.Finish != nil {
		h.Finish(final, truncated)
	}
}

func (h HandlerFuncs) OnError(kind domain.ErrorKind, err error) {
	if h.Error != nil {
		h.Error(kind, err)
	}
}
