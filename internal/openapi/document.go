package openapi

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Document is the subset of an OpenAPI 3 description needed to derive tool
// functions. Schemas are kept as generic maps so they can be forwarded as
// JSON Schema unchanged.
type Document struct {
	OpenAPI    string              `yaml:"openapi" validate:"required"`
	Info       Info                `yaml:"info"`
	Servers    []Server            `yaml:"servers"`
	Paths      map[string]PathItem `yaml:"paths" validate:"required,min=1"`
	Components Components          `yaml:"components"`

	raw map[string]any
}

type Info struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

type Server struct {
	URL string `yaml:"url"`
}

type PathItem struct {
	Parameters []Parameter `yaml:"parameters"`
	Get        *Operation  `yaml:"get"`
	Put        *Operation  `yaml:"put"`
	Post       *Operation  `yaml:"post"`
	Delete     *Operation  `yaml:"delete"`
	Options    *Operation  `yaml:"options"`
	Head       *Operation  `yaml:"head"`
	Patch      *Operation  `yaml:"patch"`
	Trace      *Operation  `yaml:"trace"`
}

type Operation struct {
	OperationID string       `yaml:"operationId"`
	Summary     string       `yaml:"summary"`
	Description string       `yaml:"description"`
	Parameters  []Parameter  `yaml:"parameters"`
	RequestBody *RequestBody `yaml:"requestBody"`
}

type Parameter struct {
	Ref         string         `yaml:"$ref"`
	Name        string         `yaml:"name"`
	In          string         `yaml:"in"`
	Description string         `yaml:"description"`
	Required    bool           `yaml:"required"`
	Schema      map[string]any `yaml:"schema"`
}

type RequestBody struct {
	Ref     string               `yaml:"$ref"`
	Content map[string]MediaType `yaml:"content"`
}

type MediaType struct {
	Schema map[string]any `yaml:"schema"`
}

type Components struct {
	Schemas       map[string]any         `yaml:"schemas"`
	Parameters    map[string]Parameter   `yaml:"parameters"`
	RequestBodies map[string]RequestBody `yaml:"requestBodies"`
}

type methodOperation struct {
	method string
	op     *Operation
}

// operations lists the item's operations in a fixed method order.
func (p PathItem) operations() []methodOperation {
	all := []methodOperation{
		{"GET", p.Get},
		{"PUT", p.Put},
		{"POST", p.Post},
		{"DELETE", p.Delete},
		{"OPTIONS", p.Options},
		{"HEAD", p.Head},
		{"PATCH", p.Patch},
		{"TRACE", p.Trace},
	}
	ops := all[:0]
	for _, mo := range all {
		if mo.op != nil {
			ops = append(ops, mo)
		}
	}
	return ops
}

var validate = validator.New()

// ParseDocument reads a YAML or JSON OpenAPI description.
func ParseDocument(content []byte) (*Document, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if err := yaml.Unmarshal(content, &doc.raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, fmt.Errorf("unsupported openapi version %q", doc.OpenAPI)
	}
	return &doc, nil
}

// lookup resolves a local JSON pointer such as "#/components/schemas/Pet".
func (d *Document) lookup(ref string) (any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, fmt.Errorf("unsupported $ref %q: only local references are resolved", ref)
	}
	var node any = d.raw
	for _, part := range strings.Split(ref[2:], "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unresolvable $ref %q", ref)
		}
		if node, ok = m[part]; !ok {
			return nil, fmt.Errorf("unresolvable $ref %q", ref)
		}
	}
	return node, nil
}

// resolveSchema deep-copies a schema, inlining local references. A
// reference that is already being expanded is replaced by an open object.
func (d *Document) resolveSchema(node any, active map[string]bool) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			if active[ref] {
				return map[string]any{"type": "object"}, nil
			}
			target, err := d.lookup(ref)
			if err != nil {
				return nil, err
			}
			active[ref] = true
			defer delete(active, ref)
			return d.resolveSchema(target, active)
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			resolved, err := d.resolveSchema(child, active)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			resolved, err := d.resolveSchema(child, active)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (d *Document) resolveParameter(p Parameter) (Parameter, error) {
	if p.Ref == "" {
		return p, nil
	}
	name := strings.TrimPrefix(p.Ref, "#/components/parameters/")
	resolved, ok := d.Components.Parameters[name]
	if !ok || name == p.Ref {
		return Parameter{}, fmt.Errorf("unresolvable parameter $ref %q", p.Ref)
	}
	return resolved, nil
}

func (d *Document) resolveRequestBody(b *RequestBody) (*RequestBody, error) {
	if b == nil || b.Ref == "" {
		return b, nil
	}
	name := strings.TrimPrefix(b.Ref, "#/components/requestBodies/")
	resolved, ok := d.Components.RequestBodies[name]
	if !ok || name == b.Ref {
		return nil, fmt.Errorf("unresolvable requestBody $ref %q", b.Ref)
	}
	return &resolved, nil
}
