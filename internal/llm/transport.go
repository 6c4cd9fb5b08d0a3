package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/isaacphi/toolturn/internal/domain"
)

const (
	DefaultEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	DefaultModel    = "qwen-max"
)

// Request is one submission of the conversation to the service.
type Request struct {
	Messages []domain.Message
	Tools    []domain.FunctionSchema
	Stream   bool
}

// Transport submits a request and returns its response chunks.
type Transport interface {
	Send(ctx context.Context, req Request) (ChunkSource, error)
}

type Options struct {
	Endpoint       string
	APIKey         string
	Model          string
	Temperature    *float64
	TopP           *float64
	EnableSearch   bool
	SearchStrategy string
	EnableCitation bool
	// Timeout bounds a whole request including reading the stream. Zero
	// means no limit.
	Timeout time.Duration
}

// HTTPTransport talks to an OpenAI-compatible chat completions endpoint
// with the DashScope extensions.
type HTTPTransport struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

func NewHTTPTransport(opts Options, client *http.Client, logger *slog.Logger) *HTTPTransport {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{opts: opts, client: client, logger: logger}
}

func (t *HTTPTransport) buildBody(req Request) wireRequest {
	body := wireRequest{
		Model:       t.opts.Model,
		Messages:    toWireMessages(req.Messages),
		Stream:      req.Stream,
		Temperature: t.opts.Temperature,
		Tools:       toWireTools(req.Tools),
	}
	if t.opts.TopP != nil {
		topP := *t.opts.TopP
		// The service rejects top_p == 1.
		if topP >= 1 {
			topP = 0.99
		}
		body.TopP = &topP
	}
	if t.opts.EnableSearch {
		body.EnableSearch = true
		body.SearchOptions = &searchOptions{
			SearchStrategy: t.opts.SearchStrategy,
			EnableCitation: t.opts.EnableCitation,
		}
	}
	return body
}

func (t *HTTPTransport) Send(ctx context.Context, req Request) (ChunkSource, error) {
	data, err := json.Marshal(t.buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cancel := context.CancelFunc(func() {})
	if t.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.opts.APIKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("X-DashScope-SSE", "enable")
	} else {
		httpReq.Header.Set("X-DashScope-SSE", "disable")
	}

	t.logger.Debug("sending chat request",
		"endpoint", t.opts.Endpoint,
		"model", t.opts.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", req.Stream,
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &domain.TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &domain.TransportError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(friendlyHTTPError(resp.StatusCode, raw)),
		}
	}

	body := &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	if req.Stream {
		return newSSESource(body), nil
	}
	return &bodySource{body: body}, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	var payload struct {
		Error   *wireError `json:"error"`
		Message string     `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != nil && payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	if s == "" {
		s = http.StatusText(code)
	}
	return s
}

// cancelBody releases the request context when the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
