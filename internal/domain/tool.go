package domain

import "context"

// FunctionSchema describes one callable tool function to the service.
// Parameters is a JSON-Schema object and must not be mutated after
// registration.
type FunctionSchema struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// Invoker executes one tool function. Failures are returned as errors,
// never raised.
type Invoker interface {
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

type InvokerFunc func(ctx context.Context, args map[string]any) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// EmptyParameters is the schema used when a tool declares no input.
func EmptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []any{},
	}
}
