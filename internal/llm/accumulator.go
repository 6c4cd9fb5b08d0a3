package llm

import (
	"log/slog"
	"strings"

	"github.com/isaacphi/toolturn/internal/domain"
)

// Accumulator reassembles tool calls from fragments of a single streaming
// phase. An index is opened by the first fragment that carries an ID.
// Fragments for an index that is not open yet are held and prefixed to that
// call's arguments if it opens later; held fragments whose index never opens
// are dropped.
type Accumulator struct {
	calls   map[int]*domain.FunctionCall
	order   []int
	orphans map[int]*orphan
	logger  *slog.Logger
}

type orphan struct {
	name string
	args strings.Builder
	n    int
}

func NewAccumulator(logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		calls:   make(map[int]*domain.FunctionCall),
		orphans: make(map[int]*orphan),
		logger:  logger,
	}
}

func (a *Accumulator) Add(f domain.FunctionCallFragment) {
	call, open := a.calls[f.Index]

	switch {
	case f.ID != "" && !open:
		call = &domain.FunctionCall{ID: f.ID, Name: f.Name}
		if o, ok := a.orphans[f.Index]; ok {
			call.Arguments = o.args.String()
			if call.Name == "" {
				call.Name = o.name
			}
			delete(a.orphans, f.Index)
		}
		call.Arguments += f.ArgumentsChunk
		a.calls[f.Index] = call
		a.order = append(a.order, f.Index)

	case f.ID != "" && open:
		// Re-announcement of an open call.
		call.ID = f.ID
		if f.Name != "" {
			call.Name = f.Name
		}
		call.Arguments += f.ArgumentsChunk

	case open:
		if call.Name == "" && f.Name != "" {
			call.Name = f.Name
		}
		call.Arguments += f.ArgumentsChunk

	default:
		o, ok := a.orphans[f.Index]
		if !ok {
			o = &orphan{}
			a.orphans[f.Index] = o
		}
		if o.name == "" {
			o.name = f.Name
		}
		o.args.WriteString(f.ArgumentsChunk)
		o.n++
	}
}

// Calls returns the opened calls in opening order and discards any held
// fragments that never found their call.
func (a *Accumulator) Calls() []domain.FunctionCall {
	for idx, o := range a.orphans {
		a.logger.Warn("dropping tool call fragments without an id",
			"index", idx,
			"fragments", o.n,
			"arguments", o.args.String(),
		)
	}
	a.orphans = make(map[int]*orphan)

	calls := make([]domain.FunctionCall, 0, len(a.order))
	for _, idx := range a.order {
		calls = append(calls, *a.calls[idx])
	}
	return calls
}

// Pending reports whether any call has been opened.
func (a *Accumulator) Pending() bool {
	return len(a.order) > 0
}
