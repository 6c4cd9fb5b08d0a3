package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/isaacphi/toolturn/internal/domain"
	"golang.org/x/sync/errgroup"
)

// invokeAll runs every call concurrently and returns one result text per
// call, in call order. Failures become "Error: ..." results.
func (t *turn) invokeAll(ctx context.Context, calls []domain.FunctionCall) []string {
	results := make([]string, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			out, err := t.invoke(ctx, call)
			if err != nil {
				t.logger.Warn("tool call failed", "function", call.Name, "id", call.ID, "error", err)
				out = fmt.Sprintf("Error: %v", err)
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (t *turn) invoke(ctx context.Context, call domain.FunctionCall) (out string, err error) {
	invoker, ok := t.toolset.Invoker(call.Name)
	if !ok {
		return "", &domain.ToolExecutionError{Function: call.Name, Err: fmt.Errorf("tool '%s' not found", call.Name)}
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		return "", &domain.ToolExecutionError{Function: call.Name, Err: err}
	}

	if t.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ToolTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &domain.ToolExecutionError{Function: call.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	t.logger.Debug("invoking tool", "function", call.Name, "id", call.ID)
	out, err = invoker.Invoke(ctx, args)
	if err != nil {
		return "", &domain.ToolExecutionError{Function: call.Name, Err: err}
	}
	return out, nil
}

// parseArguments decodes a call's argument string. An empty string means no
// arguments.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments %q: %w", raw, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
