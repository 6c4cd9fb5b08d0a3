package llm

import (
	"encoding/json"

	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/tmc/langchaingo/llms"
)

// Vendor selects where the message fragment lives inside a response chunk.
type Vendor string

const (
	// VendorOpenAI reads choices[0].delta, or choices[0].message for
	// non-streaming responses. This is also DashScope's compatible mode.
	VendorOpenAI Vendor = "openai"
	// VendorDashScope reads output.choices[0].message.
	VendorDashScope Vendor = "dashscope"
)

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role             string         `json:"role,omitempty"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Thinking         string         `json:"thinking,omitempty"`
	Name             string         `json:"name,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	Delta        *wireMessage `json:"delta,omitempty"`
	Message      *wireMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
	Output  *struct {
		Choices []wireChoice `json:"choices"`
	} `json:"output,omitempty"`
	Error *wireError `json:"error,omitempty"`

	// DashScope native errors are flat.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (c *wireChunk) serviceError() *wireError {
	if c.Error != nil {
		return c.Error
	}
	if c.Code != "" && c.Message != "" && len(c.Choices) == 0 && c.Output == nil {
		return &wireError{Message: c.Message, Code: c.Code}
	}
	return nil
}

// extract returns the message fragment of a chunk, or nil when the chunk
// carries none (usage reports, heartbeats).
func (v Vendor) extract(c *wireChunk) *wireMessage {
	choices := c.Choices
	if v == VendorDashScope && c.Output != nil {
		choices = c.Output.Choices
	}
	if len(choices) == 0 {
		return nil
	}
	if choices[0].Delta != nil {
		return choices[0].Delta
	}
	return choices[0].Message
}

type searchOptions struct {
	SearchStrategy string `json:"search_strategy,omitempty"`
	EnableCitation bool   `json:"enable_citation,omitempty"`
}

type wireRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	EnableSearch  bool           `json:"enable_search,omitempty"`
	SearchOptions *searchOptions `json:"search_options,omitempty"`
	Tools         []llms.Tool    `json:"tools,omitempty"`
}

func toWireMessages(messages []domain.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, call := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   call.ID,
				Type: "function",
				Function: wireFunction{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(schemas []domain.FunctionSchema) []llms.Tool {
	if len(schemas) == 0 {
		return nil
	}
	tools := make([]llms.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

func decodeChunk(data []byte) (*wireChunk, error) {
	var c wireChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
