// Package openapi turns OpenAPI 3 descriptions into tool functions the
// chat service can call.
package openapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/isaacphi/toolturn/internal/domain"
)

// Function is one operation of a document exposed as a callable tool.
type Function struct {
	Schema  domain.FunctionSchema
	Invoker domain.Invoker
	Method  string
	Path    string
}

// Result is everything derived from one document.
type Result struct {
	Title       string
	Description string
	Version     string
	BaseURL     string
	Functions   []Function
}

type Options struct {
	Auth Auth
	// BaseURL replaces the first server URL of the document.
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

var (
	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	pathSeparators   = regexp.MustCompile(`/+`)
)

// Adapt parses content and builds one Function per operation. Any problem
// with the document is reported as a *domain.AdapterError and no functions
// are returned.
func Adapt(content []byte, opts Options) (*Result, error) {
	res, err := adapt(content, opts)
	if err != nil {
		return nil, &domain.AdapterError{Err: err}
	}
	return res, nil
}

func adapt(content []byte, opts Options) (*Result, error) {
	if err := opts.Auth.validate(); err != nil {
		return nil, err
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	doc, err := ParseDocument(content)
	if err != nil {
		return nil, err
	}

	baseURL, err := resolveBaseURL(doc, opts.BaseURL)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Title:       doc.Info.Title,
		Description: doc.Info.Description,
		Version:     doc.Info.Version,
		BaseURL:     baseURL,
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seen := make(map[string]string)
	for _, path := range paths {
		item := doc.Paths[path]
		for _, mo := range item.operations() {
			fn, err := buildFunction(doc, item, path, mo, baseURL, opts)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", mo.method, path, err)
			}
			where := mo.method + " " + path
			if prev, dup := seen[fn.Schema.Name]; dup {
				return nil, fmt.Errorf("duplicate function name %q for %s and %s", fn.Schema.Name, prev, where)
			}
			seen[fn.Schema.Name] = where
			res.Functions = append(res.Functions, fn)
		}
	}

	if len(res.Functions) == 0 {
		return nil, fmt.Errorf("document declares no operations")
	}
	return res, nil
}

func resolveBaseURL(doc *Document, override string) (string, error) {
	raw := override
	if raw == "" && len(doc.Servers) > 0 {
		raw = doc.Servers[0].URL
	}
	if raw == "" {
		return "", fmt.Errorf("no server url and no base url override")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

// FunctionName derives the function name of an operation.
func FunctionName(method, path, operationID string) string {
	if operationID != "" {
		return invalidNameChars.ReplaceAllString(operationID, "_")
	}
	name := strings.ToUpper(method) + pathSeparators.ReplaceAllString(path, "_")
	return invalidNameChars.ReplaceAllString(name, "")
}

func buildFunction(doc *Document, item PathItem, path string, mo methodOperation, baseURL string, opts Options) (Function, error) {
	op := mo.op

	params, err := mergeParameters(doc, item.Parameters, op.Parameters)
	if err != nil {
		return Function{}, err
	}

	body, err := doc.resolveRequestBody(op.RequestBody)
	if err != nil {
		return Function{}, err
	}

	schema, err := buildParameters(doc, body, params)
	if err != nil {
		return Function{}, err
	}

	description := op.Description
	if description == "" {
		description = op.Summary
	}

	name := FunctionName(mo.method, path, op.OperationID)
	return Function{
		Schema: domain.FunctionSchema{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		Invoker: &operationInvoker{
			name:    name,
			method:  mo.method,
			path:    path,
			baseURL: baseURL,
			params:  params,
			hasBody: body != nil,
			auth:    opts.Auth,
			client:  opts.Client,
			logger:  opts.Logger,
		},
		Method: mo.method,
		Path:   path,
	}, nil
}

// mergeParameters resolves references and lets operation parameters replace
// path-level ones with the same name and location.
func mergeParameters(doc *Document, pathLevel, opLevel []Parameter) ([]Parameter, error) {
	var out []Parameter
	index := make(map[string]int)
	for _, list := range [][]Parameter{pathLevel, opLevel} {
		for _, p := range list {
			p, err := doc.resolveParameter(p)
			if err != nil {
				return nil, err
			}
			if p.Name == "" {
				continue
			}
			key := p.In + ":" + p.Name
			if i, ok := index[key]; ok {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out, nil
}

// buildParameters starts from the JSON request body schema and adds every
// query and path parameter as a property.
func buildParameters(doc *Document, body *RequestBody, params []Parameter) (map[string]any, error) {
	var schema map[string]any
	if body != nil {
		if mt, ok := body.Content["application/json"]; ok && mt.Schema != nil {
			resolved, err := doc.resolveSchema(mt.Schema, make(map[string]bool))
			if err != nil {
				return nil, err
			}
			schema, _ = resolved.(map[string]any)
		}
	}
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		props = map[string]any{}
		schema["properties"] = props
	}

	var required []any
	if existing, ok := schema["required"].([]any); ok {
		required = existing
	}
	isRequired := make(map[string]bool)
	for _, r := range required {
		if s, ok := r.(string); ok {
			isRequired[s] = true
		}
	}

	for _, p := range params {
		if p.In != "query" && p.In != "path" {
			continue
		}
		prop := map[string]any{"type": "string"}
		if p.Schema != nil {
			resolved, err := doc.resolveSchema(p.Schema, make(map[string]bool))
			if err != nil {
				return nil, err
			}
			if m, ok := resolved.(map[string]any); ok {
				if t, ok := m["type"]; ok {
					prop["type"] = t
				}
				if e, ok := m["enum"]; ok {
					prop["enum"] = e
				}
				if items, ok := m["items"]; ok {
					prop["items"] = items
				}
			}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop

		if (p.Required || p.In == "path") && !isRequired[p.Name] {
			isRequired[p.Name] = true
			required = append(required, p.Name)
		}
	}

	if required == nil {
		required = []any{}
	}
	schema["required"] = required
	return schema, nil
}
