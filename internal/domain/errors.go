package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindProtocol      ErrorKind = "protocol"
	KindAdapter       ErrorKind = "adapter"
	KindToolExecution ErrorKind = "tool_execution"
	KindTransport     ErrorKind = "transport"
	KindUnknown       ErrorKind = "unknown"
)

// ProtocolError means a chunk could not be decoded.
type ProtocolError struct {
	Chunk string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v (chunk %q)", e.Err, truncate(e.Chunk, 120))
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AdapterError means a tool description could not be turned into functions.
type AdapterError struct {
	Tool string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("adapter error: %v", e.Err)
	}
	return fmt.Sprintf("adapter error for %s: %v", e.Tool, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

type ToolExecutionError struct {
	Function string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Function, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// TransportError covers network failures, non-success HTTP statuses and
// error payloads returned by the service.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// KindOf reports which error family err belongs to.
func KindOf(err error) ErrorKind {
	var (
		pe *ProtocolError
		ae *AdapterError
		te *ToolExecutionError
		tr *TransportError
	)
	switch {
	case errors.As(err, &pe):
		return KindProtocol
	case errors.As(err, &ae):
		return KindAdapter
	case errors.As(err, &te):
		return KindToolExecution
	case errors.As(err, &tr):
		return KindTransport
	}
	return KindUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
