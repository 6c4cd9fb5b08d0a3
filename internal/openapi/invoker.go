package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const maxErrorBody = 2048

// operationInvoker performs one HTTP operation. It holds no per-call state.
type operationInvoker struct {
	name    string
	method  string
	path    string
	baseURL string
	params  []Parameter
	hasBody bool
	auth    Auth
	client  *http.Client
	logger  *slog.Logger
}

// Invoke splits declared parameters out of args and sends the rest as the
// JSON body. args is never modified.
func (o *operationInvoker) Invoke(ctx context.Context, args map[string]any) (string, error) {
	body := make(map[string]any, len(args))
	for k, v := range args {
		body[k] = v
	}

	path := o.path
	query := url.Values{}
	headers := http.Header{}
	for _, p := range o.params {
		v, ok := body[p.Name]
		if !ok || v == nil {
			if p.In == "path" {
				return "", fmt.Errorf("missing path parameter %q", p.Name)
			}
			continue
		}
		delete(body, p.Name)

		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(formatValue(v)))
		case "query":
			if list, ok := v.([]any); ok {
				for _, item := range list {
					query.Add(p.Name, formatValue(item))
				}
			} else {
				query.Set(p.Name, formatValue(v))
			}
		case "header":
			headers.Set(p.Name, formatValue(v))
		}
	}

	if o.auth.enabled() {
		switch o.auth.location() {
		case AuthInHeader:
			headers.Set(o.auth.name(), o.auth.value())
		case AuthInQuery:
			query.Set(o.auth.name(), o.auth.value())
		case AuthInBody:
			body[o.auth.name()] = o.auth.value()
		}
	}

	target := o.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	sendBody := o.hasBody || (len(body) > 0 && o.method != http.MethodGet && o.method != http.MethodHead)
	if sendBody {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, o.method, target, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if sendBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	o.logger.Debug("invoking tool operation", "function", o.name, "method", o.method, "url", o.baseURL+path)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return string(raw), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
