package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/llm"
	"github.com/isaacphi/toolturn/internal/tools"
)

// scriptedTransport replays one chunk list per Send. Once the script runs
// out the last phase repeats.
type scriptedTransport struct {
	mu       sync.Mutex
	phases   [][]string
	sendErr  error
	requests []llm.Request
}

func (s *scriptedTransport) Send(ctx context.Context, req llm.Request) (llm.ChunkSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.Messages = append([]domain.Message(nil), req.Messages...)
	s.requests = append(s.requests, req)
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	i := len(s.requests) - 1
	if i >= len(s.phases) {
		i = len(s.phases) - 1
	}
	return llm.NewSliceSource(s.phases[i]...), nil
}

func (s *scriptedTransport) sent() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

type staticResolver struct {
	set *tools.ToolSet
}

func (r staticResolver) ResolveTools(ctx context.Context, ids []string) (*tools.ToolSet, error) {
	return r.set, nil
}

func toolSet(fns map[string]domain.InvokerFunc) *tools.ToolSet {
	set := tools.NewToolSet()
	for name, fn := range fns {
		set.Add(domain.FunctionSchema{Name: name, Parameters: domain.EmptyParameters()}, fn)
	}
	return set
}

// recorder captures every handler callback in order.
type recorder struct {
	mu        sync.Mutex
	log       []string
	thinking  []string
	content   []string
	issued    []domain.FunctionCall
	finishes  int
	errors    []domain.ErrorKind
	onContent func(n int)
	onIssued  func(call domain.FunctionCall)
}

func (r *recorder) OnThinking(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "thinking")
	r.thinking = append(r.thinking, text)
}

func (r *recorder) OnContent(text string) {
	r.mu.Lock()
	r.log = append(r.log, "content")
	r.content = append(r.content, text)
	n := len(r.content)
	r.mu.Unlock()
	if r.onContent != nil {
		r.onContent(n)
	}
}

func (r *recorder) OnToolCallIssued(call domain.FunctionCall) {
	r.mu.Lock()
	r.log = append(r.log, "tool:"+call.ID)
	r.issued = append(r.issued, call)
	r.mu.Unlock()
	if r.onIssued != nil {
		r.onIssued(call)
	}
}

func (r *recorder) OnFinish(final string, truncated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "finish")
	r.finishes++
}

func (r *recorder) OnError(kind domain.ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, "error")
	r.errors = append(r.errors, kind)
}

func waitResult(t *testing.T, h *Handle) Result {
	t.Helper()
	select {
	case <-h.Done():
		return h.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not finish")
		return Result{}
	}
}

func content(text string) string {
	return `{"choices":[{"delta":{"content":"` + text + `"}}]}`
}

func thinking(text string) string {
	return `{"choices":[{"delta":{"reasoning_content":"` + text + `"}}]}`
}

func toolChunk(index int, id, name, args string) string {
	idField := ""
	if id != "" {
		idField = `"id":"` + id + `",`
	}
	nameField := ""
	if name != "" {
		nameField = `"name":"` + name + `",`
	}
	return `{"choices":[{"delta":{"tool_calls":[{"index":` + string(rune('0'+index)) + `,` + idField +
		`"function":{` + nameField + `"arguments":` + quote(args) + `}}]}}]}`
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

var userMessages = []domain.Message{domain.NewUserMessage("what is the weather?")}

func TestFinalIsConcatenatedContent(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{{
		thinking("considering"),
		content("Hello"),
		thinking("more"),
		content(", world"),
		"[DONE]",
	}}}
	rec := &recorder{}
	o := New(tr, nil, nil)

	input := append([]domain.Message(nil), userMessages...)
	res := waitResult(t, o.StartTurn(context.Background(), input, nil, TurnConfig{Stream: true}, rec))

	if res.State != StateDone || res.Err != nil {
		t.Fatalf("state = %s err = %v", res.State, res.Err)
	}
	if res.Final != "Hello, world" {
		t.Errorf("final = %q", res.Final)
	}
	if strings.Join(rec.content, "") != res.Final {
		t.Errorf("final differs from streamed content %q", rec.content)
	}
	if len(rec.thinking) != 2 {
		t.Errorf("thinking = %q", rec.thinking)
	}
	want := []string{"thinking", "content", "thinking", "content", "finish"}
	if strings.Join(rec.log, ",") != strings.Join(want, ",") {
		t.Errorf("callbacks = %v, want %v", rec.log, want)
	}
	if len(res.Messages) != 2 || res.Messages[1].Role != domain.RoleAssistant || res.Messages[1].Content != "Hello, world" {
		t.Errorf("messages = %#v", res.Messages)
	}
	if len(input) != 1 {
		t.Error("input messages modified")
	}
	if !tr.sent()[0].Stream {
		t.Error("stream flag not forwarded")
	}
}

func TestTwoToolCallsOneCycle(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{
		{
			content("Let me check."),
			toolChunk(0, "call_a", "weather", `{"city":`),
			toolChunk(1, "call_b", "time", `{"tz":"UTC"}`),
			toolChunk(0, "", "", `"Paris"}`),
			"[DONE]",
		},
		{content("Sunny, noon."), "[DONE]"},
	}}

	var gotCity, gotTZ atomic.Value
	set := toolSet(map[string]domain.InvokerFunc{
		"weather": func(ctx context.Context, args map[string]any) (string, error) {
			gotCity.Store(args["city"])
			return "sunny", nil
		},
		"time": func(ctx context.Context, args map[string]any) (string, error) {
			gotTZ.Store(args["tz"])
			return "12:00", nil
		},
	})
	rec := &recorder{}
	o := New(tr, staticResolver{set: set}, nil)

	res := waitResult(t, o.StartTurn(context.Background(), userMessages, []string{"p"}, TurnConfig{MaxRoundTrips: 3}, rec))

	if res.State != StateDone || res.Final != "Sunny, noon." || res.RoundTrips != 1 {
		t.Fatalf("result = %+v", res)
	}
	if gotCity.Load() != "Paris" || gotTZ.Load() != "UTC" {
		t.Errorf("arguments = %v %v", gotCity.Load(), gotTZ.Load())
	}
	if len(rec.issued) != 2 || rec.issued[0].ID != "call_a" || rec.issued[1].ID != "call_b" {
		t.Errorf("issued = %#v", rec.issued)
	}

	reqs := tr.sent()
	if len(reqs) != 2 {
		t.Fatalf("sent %d requests", len(reqs))
	}
	if len(reqs[0].Tools) != 2 {
		t.Errorf("tools offered = %d", len(reqs[0].Tools))
	}
	second := reqs[1].Messages
	if len(second) != 4 {
		t.Fatalf("resubmitted %d messages: %#v", len(second), second)
	}
	assistant := second[1]
	if assistant.Role != domain.RoleAssistant || assistant.Content != "Let me check." || len(assistant.ToolCalls) != 2 {
		t.Fatalf("assistant message = %#v", assistant)
	}
	if assistant.ToolCalls[0].Arguments != `{"city":"Paris"}` {
		t.Errorf("arguments = %q", assistant.ToolCalls[0].Arguments)
	}
	for i, want := range []struct{ id, content string }{{"call_a", "sunny"}, {"call_b", "12:00"}} {
		m := second[2+i]
		if m.Role != domain.RoleTool || m.ToolCallID != want.id || m.Content != want.content {
			t.Errorf("tool message %d = %#v", i, m)
		}
	}
	if n := len(res.Messages); n != 5 {
		t.Errorf("result messages = %d", n)
	}
}

func TestFailingToolsBecomeMessages(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{
		{
			toolChunk(0, "c1", "ok", `{}`),
			toolChunk(1, "c2", "broken", `{}`),
			toolChunk(2, "c3", "ok", `{"n":3}`),
			toolChunk(3, "c4", "missing", ``),
			toolChunk(4, "c5", "ok", `{not json`),
			"[DONE]",
		},
		{content("done"), "[DONE]"},
	}}
	set := toolSet(map[string]domain.InvokerFunc{
		"ok": func(ctx context.Context, args map[string]any) (string, error) { return "fine", nil },
		"broken": func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("HTTP 500: boom")
		},
	})
	o := New(tr, staticResolver{set: set}, nil)
	res := waitResult(t, o.StartTurn(context.Background(), userMessages, []string{"p"}, TurnConfig{MaxRoundTrips: 1}, &recorder{}))

	if res.State != StateDone {
		t.Fatalf("state = %s err = %v", res.State, res.Err)
	}
	toolMsgs := tr.sent()[1].Messages[2:]
	if len(toolMsgs) != 5 {
		t.Fatalf("tool messages = %#v", toolMsgs)
	}
	wantPrefix := []string{"fine", "Error:", "fine", "Error:", "Error:"}
	for i, m := range toolMsgs {
		if !strings.HasPrefix(m.Content, wantPrefix[i]) {
			t.Errorf("tool message %d = %q, want prefix %q", i, m.Content, wantPrefix[i])
		}
	}
	if !strings.Contains(toolMsgs[1].Content, "boom") || !strings.Contains(toolMsgs[3].Content, "not found") {
		t.Errorf("error descriptions = %q / %q", toolMsgs[1].Content, toolMsgs[3].Content)
	}
}

func TestRoundTripBudget(t *testing.T) {
	always := []string{content("again"), toolChunk(0, "c", "loop", `{}`), "[DONE]"}
	var invocations atomic.Int32
	set := toolSet(map[string]domain.InvokerFunc{
		"loop": func(ctx context.Context, args map[string]any) (string, error) {
			invocations.Add(1)
			return "ok", nil
		},
	})

	for _, budget := range []int{0, 1, 2} {
		invocations.Store(0)
		tr := &scriptedTransport{phases: [][]string{always}}
		rec := &recorder{}
		o := New(tr, staticResolver{set: set}, nil)
		res := waitResult(t, o.StartTurn(context.Background(), userMessages, []string{"p"}, TurnConfig{MaxRoundTrips: budget}, rec))

		if res.State != StateDone || !res.Truncated {
			t.Errorf("budget %d: state = %s truncated = %v", budget, res.State, res.Truncated)
		}
		if int(invocations.Load()) != budget || res.RoundTrips != budget {
			t.Errorf("budget %d: invocations = %d round trips = %d", budget, invocations.Load(), res.RoundTrips)
		}
		if len(tr.sent()) != budget+1 {
			t.Errorf("budget %d: requests = %d", budget, len(tr.sent()))
		}
		if res.Final != "again" || rec.finishes != 1 {
			t.Errorf("budget %d: final = %q finishes = %d", budget, res.Final, rec.finishes)
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{{
		content("a"), content("b"), content("c"), content("d"), "[DONE]",
	}}}
	rec := &recorder{}
	o := New(tr, nil, nil)

	var h *Handle
	ready := make(chan struct{})
	rec.onContent = func(n int) {
		if n == 2 {
			<-ready
			h.Cancel()
		}
	}
	h = o.StartTurn(context.Background(), userMessages, nil, TurnConfig{}, rec)
	close(ready)
	res := waitResult(t, h)

	if res.State != StateCancelled {
		t.Fatalf("state = %s", res.State)
	}
	if len(rec.content) != 2 {
		t.Errorf("content after cancel: %q", rec.content)
	}
	if rec.finishes != 0 || len(rec.errors) != 0 {
		t.Errorf("finishes = %d errors = %v", rec.finishes, rec.errors)
	}
	h.Cancel()
}

func TestCancelDuringInvocation(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{
		{toolChunk(0, "c", "slow", `{}`), "[DONE]"},
		{content("never"), "[DONE]"},
	}}
	set := toolSet(map[string]domain.InvokerFunc{
		"slow": func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	rec := &recorder{}
	o := New(tr, staticResolver{set: set}, nil)

	var h *Handle
	ready := make(chan struct{})
	rec.onIssued = func(domain.FunctionCall) {
		<-ready
		h.Cancel()
	}
	h = o.StartTurn(context.Background(), userMessages, []string{"p"}, TurnConfig{MaxRoundTrips: 2}, rec)
	close(ready)
	res := waitResult(t, h)

	if res.State != StateCancelled {
		t.Fatalf("state = %s", res.State)
	}
	if len(tr.sent()) != 1 {
		t.Errorf("resubmitted after cancel: %d requests", len(tr.sent()))
	}
	if rec.finishes != 0 || len(rec.errors) != 0 {
		t.Errorf("finishes = %d errors = %v", rec.finishes, rec.errors)
	}
}

func TestProtocolErrorReportedOnce(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{{content("partial"), `{"choices":[{"delta":`, content("late"), "[DONE]"}}}
	rec := &recorder{}
	res := waitResult(t, New(tr, nil, nil).StartTurn(context.Background(), userMessages, nil, TurnConfig{}, rec))

	if res.State != StateErrored {
		t.Fatalf("state = %s", res.State)
	}
	var pe *domain.ProtocolError
	if !errors.As(res.Err, &pe) {
		t.Errorf("err = %v", res.Err)
	}
	if len(rec.errors) != 1 || rec.errors[0] != domain.KindProtocol {
		t.Errorf("errors = %v", rec.errors)
	}
	if rec.finishes != 0 {
		t.Error("finish called after error")
	}
	if len(rec.content) != 1 || rec.content[0] != "partial" {
		t.Errorf("content = %q", rec.content)
	}
}

func TestTransportErrorReported(t *testing.T) {
	tr := &scriptedTransport{sendErr: &domain.TransportError{StatusCode: 401, Err: errors.New("invalid api key")}}
	rec := &recorder{}
	res := waitResult(t, New(tr, nil, nil).StartTurn(context.Background(), userMessages, nil, TurnConfig{}, rec))

	if res.State != StateErrored || len(rec.errors) != 1 || rec.errors[0] != domain.KindTransport {
		t.Errorf("state = %s errors = %v", res.State, rec.errors)
	}
}

func TestToolCallsIgnoredWithoutTools(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{{content("answer"), toolChunk(0, "c", "x", `{}`), "[DONE]"}}}
	rec := &recorder{}
	res := waitResult(t, New(tr, nil, nil).StartTurn(context.Background(), userMessages, nil, TurnConfig{MaxRoundTrips: 3}, rec))

	if res.State != StateDone || res.Final != "answer" || res.Truncated {
		t.Errorf("result = %+v", res)
	}
	if len(rec.issued) != 0 || len(tr.sent()) != 1 {
		t.Errorf("issued = %d requests = %d", len(rec.issued), len(tr.sent()))
	}
}

func TestToolsRunConcurrently(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{
		{toolChunk(0, "a", "meet", `{}`), toolChunk(1, "b", "meet", `{}`), "[DONE]"},
		{content("ok"), "[DONE]"},
	}}
	var arrived sync.WaitGroup
	arrived.Add(2)
	set := toolSet(map[string]domain.InvokerFunc{
		"meet": func(ctx context.Context, args map[string]any) (string, error) {
			arrived.Done()
			waited := make(chan struct{})
			go func() { arrived.Wait(); close(waited) }()
			select {
			case <-waited:
				return "met", nil
			case <-time.After(2 * time.Second):
				return "", errors.New("invocations ran sequentially")
			}
		},
	})
	res := waitResult(t, New(tr, staticResolver{set: set}, nil).StartTurn(context.Background(), userMessages, []string{"p"}, TurnConfig{MaxRoundTrips: 1}, nil))

	for _, m := range res.Messages {
		if m.Role == domain.RoleTool && m.Content != "met" {
			t.Errorf("tool result = %q", m.Content)
		}
	}
}

func TestToolTimeout(t *testing.T) {
	tr := &scriptedTransport{phases: [][]string{
		{toolChunk(0, "a", "hang", `{}`), "[DONE]"},
		{content("ok"), "[DONE]"},
	}}
	set := toolSet(map[string]domain.InvokerFunc{
		"hang": func(ctx context.Context, args map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	})
	res := waitResult(t, New(tr, staticResolver{set: set}, nil).StartTurn(context.Background(), userMessages, []string{"p"},
		TurnConfig{MaxRoundTrips: 1, ToolTimeout: 20 * time.Millisecond}, nil))

	if res.State != StateDone {
		t.Fatalf("state = %s", res.State)
	}
	if msg := res.Messages[2]; !strings.Contains(msg.Content, "deadline exceeded") {
		t.Errorf("tool message = %q", msg.Content)
	}
}

func TestParseArguments(t *testing.T) {
	for _, raw := range []string{"", "  ", "{}", "null"} {
		args, err := parseArguments(raw)
		if err != nil || args == nil || len(args) != 0 {
			t.Errorf("parseArguments(%q) = %v, %v", raw, args, err)
		}
	}
	if _, err := parseArguments(`[1,2]`); err == nil {
		t.Error("array arguments should be rejected")
	}
}
