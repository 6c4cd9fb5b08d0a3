package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/events"
)

func TestHTTPTransportStreams(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	topP := 1.0
	tr := NewHTTPTransport(Options{
		Endpoint:       srv.URL,
		APIKey:         "sk-test",
		TopP:           &topP,
		EnableSearch:   true,
		SearchStrategy: "pro",
	}, srv.Client(), nil)

	src, err := tr.Send(context.Background(), Request{
		Messages: []domain.Message{
			domain.NewUserMessage("hi"),
			{Role: domain.RoleAssistant, ToolCalls: []domain.FunctionCall{{ID: "c1", Name: "f", Arguments: "{}"}}},
			{Role: domain.RoleTool, ToolCallID: "c1", Content: "ok"},
		},
		Tools:  []domain.FunctionSchema{{Name: "f", Description: "d", Parameters: domain.EmptyParameters()}},
		Stream: true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	d := NewDecoder(src, VendorOpenAI)
	defer d.Close()
	var text string
	for {
		ev, err := d.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.Type() == events.EventTypeDone {
			break
		}
		text += ev.(ContentEvent).Text
	}
	if text != "hey" {
		t.Errorf("text = %q, want %q", text, "hey")
	}

	if gotHeader.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotHeader.Get("Authorization"))
	}
	if gotHeader.Get("X-DashScope-SSE") != "enable" {
		t.Errorf("X-DashScope-SSE = %q", gotHeader.Get("X-DashScope-SSE"))
	}
	if gotBody["model"] != DefaultModel {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["top_p"] != 0.99 {
		t.Errorf("top_p = %v, want 0.99", gotBody["top_p"])
	}
	if gotBody["enable_search"] != true {
		t.Errorf("enable_search = %v", gotBody["enable_search"])
	}
	tools, _ := gotBody["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %#v", gotBody["tools"])
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "f" {
		t.Errorf("tool name = %v", fn["name"])
	}
	msgs := gotBody["messages"].([]any)
	assistant := msgs[1].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	call := calls[0].(map[string]any)
	if call["type"] != "function" || call["id"] != "c1" {
		t.Errorf("tool call = %#v", call)
	}
	if msgs[2].(map[string]any)["tool_call_id"] != "c1" {
		t.Errorf("tool message = %#v", msgs[2])
	}
}

func TestHTTPTransportNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-DashScope-SSE") != "disable" {
			t.Errorf("X-DashScope-SSE = %q", r.Header.Get("X-DashScope-SSE"))
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"whole"}}]}`)
	}))
	defer srv.Close()

	src, err := NewHTTPTransport(Options{Endpoint: srv.URL}, srv.Client(), nil).Send(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	d := NewDecoder(src, VendorOpenAI)
	ev, err := d.Next()
	if err != nil || ev != (ContentEvent{Text: "whole"}) {
		t.Fatalf("first event = %#v, %v", ev, err)
	}
	if ev, _ := d.Next(); ev.Type() != events.EventTypeDone {
		t.Fatalf("second event = %#v", ev)
	}
}

func TestHTTPTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(Options{Endpoint: srv.URL}, srv.Client(), nil).Send(context.Background(), Request{Stream: true})
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", te.StatusCode)
	}
	if te.Err.Error() != "invalid api key" {
		t.Errorf("message = %q", te.Err.Error())
	}
}
