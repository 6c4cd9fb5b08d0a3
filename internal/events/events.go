package events

// EventType defines the type of a decoded stream event
type EventType int

const (
	EventTypeThinking EventType = iota
	EventTypeContent
	EventTypeToolFragment
	EventTypeDone
)

func (t EventType) String() string {
	switch t {
	case EventTypeThinking:
		return "thinking"
	case EventTypeContent:
		return "content"
	case EventTypeToolFragment:
		return "tool_fragment"
	case EventTypeDone:
		return "done"
	}
	return "unknown"
}

// Event is the interface for all streaming events
type Event interface {
	Type() EventType
}
