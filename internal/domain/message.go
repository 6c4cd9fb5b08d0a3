package domain

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation sent to the service. Assistant
// messages that request tools carry ToolCalls; tool results carry ToolCallID.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []FunctionCall `json:"tool_calls,omitempty"`
}

// FunctionCall is a tool invocation requested by the service. Arguments is
// the concatenation of every streamed fragment and is only parsed as JSON
// when the call is invoked.
type FunctionCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallFragment is a partial FunctionCall as it appears in one chunk.
type FunctionCallFragment struct {
	Index          int
	ID             string
	Name           string
	ArgumentsChunk string
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewToolMessage(call FunctionCall, content string) Message {
	return Message{Role: RoleTool, Name: call.Name, ToolCallID: call.ID, Content: content}
}
