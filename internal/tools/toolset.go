package tools

import "github.com/isaacphi/toolturn/internal/domain"

// ToolSet is the frozen set of functions available during one turn.
type ToolSet struct {
	Schemas  []domain.FunctionSchema
	Excluded map[string]error

	invokers map[string]domain.Invoker
}

func NewToolSet() *ToolSet {
	return &ToolSet{
		Excluded: make(map[string]error),
		invokers: make(map[string]domain.Invoker),
	}
}

// Add registers a function. It returns false and keeps the existing entry
// when the name is taken.
func (s *ToolSet) Add(schema domain.FunctionSchema, invoker domain.Invoker) bool {
	if _, exists := s.invokers[schema.Name]; exists {
		return false
	}
	s.Schemas = append(s.Schemas, schema)
	s.invokers[schema.Name] = invoker
	return true
}

func (s *ToolSet) Invoker(name string) (domain.Invoker, bool) {
	if s == nil {
		return nil, false
	}
	inv, ok := s.invokers[name]
	return inv, ok
}

func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Schemas)
}
