package config

import (
	"fmt"
	"time"
)

type Provider struct {
	Vendor         string   `mapstructure:"vendor" json:"vendor" validate:"omitempty,oneof=openai dashscope" jsonschema:"enum=openai,enum=dashscope,description=Response layout of the chat endpoint"`
	Endpoint       string   `mapstructure:"endpoint" json:"endpoint" validate:"omitempty,url" jsonschema:"description=Chat completions URL"`
	APIKey         string   `mapstructure:"apiKey" json:"apiKey,omitempty" jsonschema:"description=API key sent as a bearer token"`
	Model          string   `mapstructure:"model" json:"model" validate:"required" jsonschema:"description=Model name"`
	Temperature    *float64 `mapstructure:"temperature" json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopP           *float64 `mapstructure:"topP" json:"topP,omitempty" validate:"omitempty,gt=0,lte=1"`
	Stream         bool     `mapstructure:"stream" json:"stream" jsonschema:"description=Use incremental streaming responses"`
	Timeout        string   `mapstructure:"timeout" json:"timeout,omitempty" jsonschema:"description=Request timeout as a Go duration, e.g. 60s"`
	EnableSearch   bool     `mapstructure:"enableSearch" json:"enableSearch,omitempty"`
	SearchStrategy string   `mapstructure:"searchStrategy" json:"searchStrategy,omitempty" validate:"omitempty,oneof=standard pro" jsonschema:"enum=standard,enum=pro"`
	EnableCitation bool     `mapstructure:"enableCitation" json:"enableCitation,omitempty"`
}

type Agent struct {
	MaxRoundTrips int    `mapstructure:"maxRoundTrips" json:"maxRoundTrips" validate:"gte=0" jsonschema:"description=Maximum tool round trips per turn"`
	ToolTimeout   string `mapstructure:"toolTimeout" json:"toolTimeout,omitempty" jsonschema:"description=Timeout for a single tool invocation as a Go duration"`
	SystemMessage string `mapstructure:"systemMessage" json:"systemMessage,omitempty"`
}

type Auth struct {
	Type     string `mapstructure:"type" json:"type,omitempty" validate:"omitempty,oneof=none basic bearer custom" jsonschema:"enum=none,enum=basic,enum=bearer,enum=custom"`
	Location string `mapstructure:"location" json:"location,omitempty" validate:"omitempty,oneof=header query body" jsonschema:"enum=header,enum=query,enum=body"`
	Header   string `mapstructure:"header" json:"header,omitempty" jsonschema:"description=Header or field name when type is custom"`
	Token    string `mapstructure:"token" json:"token,omitempty"`
}

// Plugin is a source of tool functions: an OpenAPI description or an MCP
// server.
type Plugin struct {
	Title   string `mapstructure:"title" json:"title,omitempty"`
	Version string `mapstructure:"version" json:"version,omitempty"`
	Kind    string `mapstructure:"kind" json:"kind,omitempty" validate:"omitempty,oneof=openapi mcp" jsonschema:"enum=openapi,enum=mcp,default=openapi"`

	// openapi
	Content string `mapstructure:"content" json:"content,omitempty" jsonschema:"description=Inline OpenAPI document"`
	Path    string `mapstructure:"path" json:"path,omitempty" jsonschema:"description=Path to an OpenAPI document"`
	BaseURL string `mapstructure:"baseUrl" json:"baseUrl,omitempty" validate:"omitempty,url"`
	Auth    Auth   `mapstructure:"auth" json:"auth,omitempty"`

	// mcp
	Command string            `mapstructure:"command" json:"command,omitempty"`
	Args    []string          `mapstructure:"args" json:"args,omitempty"`
	Env     map[string]string `mapstructure:"env" json:"env,omitempty"`
}

type Log struct {
	LogLevel string `mapstructure:"logLevel" json:"logLevel" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" jsonschema:"enum=DEBUG,enum=INFO,enum=WARN,enum=ERROR"`
	LogFile  string `mapstructure:"logFile" json:"logFile,omitempty"`
}

type ConfigSchema struct {
	Provider Provider          `mapstructure:"provider" json:"provider"`
	Agent    Agent             `mapstructure:"agent" json:"agent"`
	Plugins  map[string]Plugin `mapstructure:"plugins" json:"plugins,omitempty" validate:"dive"`
	Log      Log               `mapstructure:"log" json:"log"`

	// Internal fields for printing
	sources map[string][]configSource
}

// RequestTimeout parses Timeout. An empty value means no timeout.
func (p Provider) RequestTimeout() (time.Duration, error) {
	return parseDuration("provider.timeout", p.Timeout)
}

// InvocationTimeout parses ToolTimeout. An empty value means no timeout.
func (a Agent) InvocationTimeout() (time.Duration, error) {
	return parseDuration("agent.toolTimeout", a.ToolTimeout)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, s)
	}
	return d, nil
}
