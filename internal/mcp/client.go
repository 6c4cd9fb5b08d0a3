// Package mcp runs Model Context Protocol servers over stdio and exposes
// their tools as functions.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/isaacphi/toolturn/internal/domain"
	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Server is the command line of one MCP server.
type Server struct {
	Command string
	Args    []string
	Env     map[string]string
}

// Tool is one tool offered by a server.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type connection struct {
	client *mcp_golang.Client
	cmd    *exec.Cmd
	tools  []Tool
	err    error
}

// Client manages multiple MCP server connections. A server that fails to
// start only affects its own tools.
type Client struct {
	servers     map[string]Server
	conns       map[string]*connection
	logger      *slog.Logger
	mu          sync.RWMutex
	initialized bool
}

// New creates a new MCP client manager
func New(servers map[string]Server, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		servers: servers,
		conns:   make(map[string]*connection),
		logger:  logger,
	}
}

// Initialize starts all configured servers in parallel and lists their
// tools. Per-server failures are recorded and reported by Tools.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}

	var (
		g, gctx = errgroup.WithContext(ctx)
		connsMu sync.Mutex
	)
	for name, server := range c.servers {
		g.Go(func() error {
			conn := c.startServer(gctx, name, server)
			if conn.err != nil {
				c.logger.Warn("mcp server unavailable", "server", name, "error", conn.err)
			}
			connsMu.Lock()
			c.conns[name] = conn
			connsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		c.shutdownLocked()
		return errors.Wrap(err, "initialize mcp servers")
	}
	c.initialized = true
	return nil
}

// startServer starts a single server, establishes its client connection and
// lists its tools.
func (c *Client) startServer(ctx context.Context, name string, server Server) *connection {
	cmd := exec.Command(server.Command, server.Args...)
	if len(server.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &connection{err: errors.Wrap(err, "failed to get stdin pipe")}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &connection{err: errors.Wrap(err, "failed to get stdout pipe")}
	}
	if err := cmd.Start(); err != nil {
		return &connection{err: errors.Wrap(err, "failed to start server")}
	}

	transport := stdio.NewStdioServerTransportWithIO(stdout, stdin)
	client := mcp_golang.NewClient(transport)

	if _, err := client.Initialize(ctx); err != nil {
		_ = cmd.Process.Kill()
		return &connection{err: errors.Wrap(err, "failed to initialize client")}
	}

	tools, err := listTools(ctx, client)
	if err != nil {
		_ = cmd.Process.Kill()
		return &connection{err: errors.Wrapf(err, "failed to list tools for server %s", name)}
	}

	return &connection{client: client, cmd: cmd, tools: tools}
}

func listTools(ctx context.Context, client *mcp_golang.Client) ([]Tool, error) {
	var (
		tools  []Tool
		cursor *string
	)
	for {
		response, err := client.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, t := range response.Tools {
			description := ""
			if t.Description != nil {
				description = *t.Description
			}
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: description,
				Parameters:  NormalizeSchema(t.InputSchema),
			})
		}
		if response.NextCursor == nil || *response.NextCursor == "" {
			break
		}
		cursor = response.NextCursor
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// NormalizeSchema turns a server's input schema into an object schema with
// properties and required always present.
func NormalizeSchema(schema interface{}) map[string]any {
	m, ok := schema.(map[string]interface{})
	if !ok {
		return domain.EmptyParameters()
	}
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	if _, ok := out["type"].(string); !ok {
		out["type"] = "object"
	}
	if _, ok := out["properties"].(map[string]interface{}); !ok {
		out["properties"] = map[string]any{}
	}
	if _, ok := out["required"].([]interface{}); !ok {
		out["required"] = []any{}
	}
	return out
}

// Tools returns the tools of one server, or the error that kept it from
// starting.
func (c *Client) Tools(server string) ([]Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, ok := c.conns[server]
	if !ok {
		return nil, fmt.Errorf("server %s not found", server)
	}
	if conn.err != nil {
		return nil, conn.err
	}
	return append([]Tool(nil), conn.tools...), nil
}

// CallTool calls a tool on a server and returns its text output.
func (c *Client) CallTool(ctx context.Context, server, tool string, arguments map[string]any) (string, error) {
	c.mu.RLock()
	conn, exists := c.conns[server]
	c.mu.RUnlock()

	if !exists || conn.client == nil {
		return "", fmt.Errorf("server %s not available", server)
	}

	resp, err := conn.client.CallTool(ctx, tool, arguments)
	if err != nil {
		return "", errors.Wrapf(err, "call %s on %s", tool, server)
	}
	if resp == nil {
		return "", nil
	}

	var parts []string
	for _, content := range resp.Content {
		if content != nil && content.TextContent != nil {
			parts = append(parts, content.TextContent.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Invoker returns a domain.Invoker bound to one server tool.
func (c *Client) Invoker(server, tool string) domain.Invoker {
	return domain.InvokerFunc(func(ctx context.Context, args map[string]any) (string, error) {
		return c.CallTool(ctx, server, tool, args)
	})
}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FunctionName is the exposed name of a server tool.
func FunctionName(server, tool string) string {
	return invalidNameChars.ReplaceAllString(server+"__"+tool, "_")
}

// Shutdown stops all servers and cleans up resources in parallel
func (c *Client) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdownLocked()
}

func (c *Client) shutdownLocked() {
	var wg sync.WaitGroup
	for name, conn := range c.conns {
		if conn.cmd == nil || conn.cmd.Process == nil {
			continue
		}
		wg.Add(1)
		go func(name string, cmd *exec.Cmd) {
			defer wg.Done()
			if err := cmd.Process.Kill(); err != nil {
				c.logger.Warn("failed to kill mcp server", "server", name, "error", errors.Wrapf(err, "kill %s", name))
			}
			_ = cmd.Wait()
		}(name, conn.cmd)
	}
	wg.Wait()

	c.conns = make(map[string]*connection)
	c.initialized = false
}
