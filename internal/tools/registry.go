// Package tools resolves plugin ids into the functions offered to the chat
// service for one turn.
package tools

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/isaacphi/toolturn/internal/config"
	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/isaacphi/toolturn/internal/mcp"
	"github.com/isaacphi/toolturn/internal/openapi"
	"github.com/pkg/errors"
)

const (
	KindOpenAPI = "openapi"
	KindMCP     = "mcp"
)

// Info summarises a registered plugin.
type Info struct {
	ID      string
	Title   string
	Version string
	Kind    string
	Builtin bool
}

type function struct {
	schema  domain.FunctionSchema
	invoker domain.Invoker
}

type loaded struct {
	functions []function
	err       error
}

// Registry owns the configured plugins and caches what was derived from
// each of them.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]config.Plugin
	builtin map[string]bool
	loaded  map[string]*loaded
	mcp     *mcp.Client
	client  *http.Client
	logger  *slog.Logger
}

type Option func(*Registry)

// WithHTTPClient sets the client used by OpenAPI invokers.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithoutBuiltins leaves out the plugins that ship with the binary.
func WithoutBuiltins() Option {
	return func(r *Registry) {
		for id := range r.builtin {
			delete(r.plugins, id)
		}
		r.builtin = map[string]bool{}
	}
}

func NewRegistry(plugins map[string]config.Plugin, opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]config.Plugin),
		builtin: make(map[string]bool),
		loaded:  make(map[string]*loaded),
		client:  http.DefaultClient,
		logger:  slog.Default(),
	}
	for id, p := range Builtins() {
		r.plugins[id] = p
		r.builtin[id] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	for id, p := range plugins {
		if base, ok := r.plugins[id]; ok && r.builtin[id] {
			r.plugins[id] = overlay(base, p)
			continue
		}
		r.plugins[id] = p
	}
	return r
}

// Add registers or replaces a plugin.
func (r *Registry) Add(id string, p config.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[id] = p
	delete(r.loaded, id)
}

func (r *Registry) Plugin(id string) (config.Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Plugins lists registered plugins sorted by title.
func (r *Registry) Plugins() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.plugins))
	for id, p := range r.plugins {
		infos = append(infos, Info{
			ID:      id,
			Title:   p.Title,
			Version: p.Version,
			Kind:    kindOf(p),
			Builtin: r.builtin[id],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Title != infos[j].Title {
			return infos[i].Title < infos[j].Title
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Functions returns the schemas derived from one plugin.
func (r *Registry) Functions(ctx context.Context, id string) ([]domain.FunctionSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[id]; !ok {
		return nil, errors.Errorf("unknown plugin %q", id)
	}
	l := r.load(ctx, id)
	if l.err != nil {
		return nil, l.err
	}
	schemas := make([]domain.FunctionSchema, 0, len(l.functions))
	for _, f := range l.functions {
		schemas = append(schemas, f.schema)
	}
	return schemas, nil
}

// ResolveTools builds the tool set for the given plugin ids. Unknown ids
// and plugins that fail to adapt are logged and left out; only context
// cancellation is returned as an error.
func (r *Registry) ResolveTools(ctx context.Context, ids []string) (*ToolSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := NewToolSet()
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if _, ok := r.plugins[id]; !ok {
			r.logger.Warn("skipping unknown plugin", "plugin", id)
			continue
		}

		l := r.load(ctx, id)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.err != nil {
			r.logger.Warn("excluding plugin", "plugin", id, "error", l.err)
			set.Excluded[id] = l.err
			continue
		}
		for _, f := range l.functions {
			if !set.Add(f.schema, f.invoker) {
				r.logger.Warn("duplicate function name, keeping the first", "plugin", id, "function", f.schema.Name)
			}
		}
	}
	return set, nil
}

// load returns the cached functions of a plugin, adapting it on first use.
// Callers hold r.mu.
func (r *Registry) load(ctx context.Context, id string) *loaded {
	if l, ok := r.loaded[id]; ok {
		return l
	}

	p := r.plugins[id]
	var l *loaded
	switch kindOf(p) {
	case KindMCP:
		l = r.loadMCP(ctx, id)
	default:
		l = r.loadOpenAPI(id, p)
	}
	if l.err != nil {
		l.err = &domain.AdapterError{Tool: id, Err: l.err}
		if ctx.Err() != nil {
			return l
		}
	}
	r.loaded[id] = l
	return l
}

func (r *Registry) loadOpenAPI(id string, p config.Plugin) *loaded {
	content := []byte(p.Content)
	if len(content) == 0 && p.Path != "" {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return &loaded{err: errors.Wrapf(err, "read %s", p.Path)}
		}
		content = data
	}
	if len(content) == 0 {
		return &loaded{err: errors.New("plugin has neither content nor path")}
	}

	res, err := openapi.Adapt(content, openapi.Options{
		Auth:    toAuth(p.Auth),
		BaseURL: p.BaseURL,
		Client:  r.client,
		Logger:  r.logger.With("plugin", id),
	})
	if err != nil {
		var ae *domain.AdapterError
		if errors.As(err, &ae) {
			return &loaded{err: ae.Err}
		}
		return &loaded{err: err}
	}

	if p.Title == "" {
		p.Title = res.Title
	}
	if p.Version == "" {
		p.Version = res.Version
	}
	r.plugins[id] = p

	fns := make([]function, 0, len(res.Functions))
	for _, f := range res.Functions {
		fns = append(fns, function{schema: f.Schema, invoker: f.Invoker})
	}
	r.logger.Debug("adapted plugin", "plugin", id, "functions", len(fns))
	return &loaded{functions: fns}
}

func (r *Registry) loadMCP(ctx context.Context, id string) *loaded {
	if r.mcp == nil {
		servers := make(map[string]mcp.Server)
		for pid, p := range r.plugins {
			if kindOf(p) == KindMCP {
				servers[pid] = mcp.Server{Command: p.Command, Args: p.Args, Env: p.Env}
			}
		}
		r.mcp = mcp.New(servers, r.logger)
	}
	if err := r.mcp.Initialize(ctx); err != nil {
		return &loaded{err: err}
	}

	tools, err := r.mcp.Tools(id)
	if err != nil {
		return &loaded{err: err}
	}
	fns := make([]function, 0, len(tools))
	for _, t := range tools {
		fns = append(fns, function{
			schema: domain.FunctionSchema{
				Name:        mcp.FunctionName(id, t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
			invoker: r.mcp.Invoker(id, t.Name),
		})
	}
	return &loaded{functions: fns}
}

// Close stops any MCP servers started by the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mcp != nil {
		r.mcp.Shutdown()
		r.mcp = nil
	}
	return nil
}

func kindOf(p config.Plugin) string {
	if p.Kind == "" {
		return KindOpenAPI
	}
	return p.Kind
}

func toAuth(a config.Auth) openapi.Auth {
	return openapi.Auth{
		Type:       openapi.AuthType(a.Type),
		Location:   openapi.AuthLocation(a.Location),
		HeaderName: a.Header,
		Token:      a.Token,
	}
}
