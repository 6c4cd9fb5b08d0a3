package llm

import (
	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/events"
)

// ThinkingEvent carries intermediate reasoning text
type ThinkingEvent struct {
	Text string
}

func (e ThinkingEvent) Type() events.EventType {
	return events.EventTypeThinking
}

// ContentEvent carries final answer text
type ContentEvent struct {
	Text string
}

func (e ContentEvent) Type() events.EventType {
	return events.EventTypeContent
}

// ToolFragmentEvent carries one piece of a tool call
type ToolFragmentEvent struct {
	Fragment domain.FunctionCallFragment
}

func (e ToolFragmentEvent) Type() events.EventType {
	return events.EventTypeToolFragment
}

// DoneEvent ends a streaming phase. It is emitted exactly once.
type DoneEvent struct{}

func (e DoneEvent) Type() events.EventType {
	return events.EventTypeDone
}
