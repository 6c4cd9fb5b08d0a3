package agent

import (
	"github.com/isaacphi/toolturn/internal/domain"
)

// State is the position of a turn in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateToolsPending
	StateInvoking
	StateDone
	StateErrored
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateToolsPending:
		return "tools_pending"
	case StateInvoking:
		return "invoking"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateErrored || s == StateCancelled
}

// Result is the outcome of one turn.
type Result struct {
	TurnID string
	State  State
	// Messages is the input conversation followed by every message the turn
	// appended.
	Messages   []domain.Message
	Final      string
	Truncated  bool
	RoundTrips int
	Err        error
}
