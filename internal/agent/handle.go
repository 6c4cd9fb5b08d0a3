package agent

import "context"

// Handle controls a running turn.
type Handle struct {
	ID     string
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Cancel aborts the turn. It is safe to call more than once and after the
// turn has finished.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the turn reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the turn ends and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}
