// Package appState wires the process-wide services: configuration, logging,
// the chat transport, the plugin registry and the turn orchestrator.
package appState

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/isaacphi/toolturn/internal/agent"
	"github.com/isaacphi/toolturn/internal/config"
	"github.com/isaacphi/toolturn/internal/llm"
	"github.com/isaacphi/toolturn/internal/tools"
	"github.com/pkg/errors"
	"go.uber.org/dig"
)

// App holds the global application state
type App struct {
	Config       *config.ConfigSchema
	Logger       *slog.Logger
	Transport    llm.Transport
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	closer       io.Closer // log file, if any
}

var (
	globalApp *App
	initOnce  sync.Once
	initErr   error
	mu        sync.RWMutex
)

// Initialize creates the global app instance with the given overrides
func Initialize(overrides *config.RuntimeOverrides) error {
	initOnce.Do(func() {
		cfg, err := config.New(overrides)
		if err != nil {
			initErr = errors.Wrap(err, "failed to load config")
			return
		}

		logger, closer, err := setupLogger(cfg.Log)
		if err != nil {
			initErr = errors.Wrap(err, "failed to setup logger")
			return
		}

		app, err := build(cfg, logger)
		if err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			initErr = errors.Wrap(err, "failed to wire services")
			return
		}
		app.closer = closer

		mu.Lock()
		globalApp = app
		mu.Unlock()

		slog.SetDefault(logger)
	})
	return initErr
}

// build resolves the service graph for cfg.
func build(cfg *config.ConfigSchema, logger *slog.Logger) (*App, error) {
	c := dig.New()

	providers := []any{
		func() *config.ConfigSchema { return cfg },
		func() *slog.Logger { return logger },
		newTransport,
		newRegistry,
		newOrchestrator,
	}
	for _, p := range providers {
		if err := c.Provide(p); err != nil {
			return nil, err
		}
	}

	var app *App
	err := c.Invoke(func(t llm.Transport, r *tools.Registry, o *agent.Orchestrator) {
		app = &App{
			Config:       cfg,
			Logger:       logger,
			Transport:    t,
			Registry:     r,
			Orchestrator: o,
		}
	})
	return app, err
}

func newTransport(cfg *config.ConfigSchema, logger *slog.Logger) (llm.Transport, error) {
	timeout, err := cfg.Provider.RequestTimeout()
	if err != nil {
		return nil, err
	}
	return llm.NewHTTPTransport(llm.Options{
		Endpoint:       cfg.Provider.Endpoint,
		APIKey:         cfg.Provider.APIKey,
		Model:          cfg.Provider.Model,
		Temperature:    cfg.Provider.Temperature,
		TopP:           cfg.Provider.TopP,
		EnableSearch:   cfg.Provider.EnableSearch,
		SearchStrategy: cfg.Provider.SearchStrategy,
		EnableCitation: cfg.Provider.EnableCitation,
		Timeout:        timeout,
	}, nil, logger), nil
}

func newRegistry(cfg *config.ConfigSchema, logger *slog.Logger) *tools.Registry {
	return tools.NewRegistry(cfg.Plugins, tools.WithLogger(logger))
}

func newOrchestrator(t llm.Transport, r *tools.Registry, logger *slog.Logger) *agent.Orchestrator {
	return agent.New(t, r, logger)
}

// TurnConfig returns the turn settings from the loaded configuration.
func (a *App) TurnConfig() (agent.TurnConfig, error) {
	timeout, err := a.Config.Agent.InvocationTimeout()
	if err != nil {
		return agent.TurnConfig{}, err
	}
	vendor := llm.Vendor(a.Config.Provider.Vendor)
	if vendor == "" {
		vendor = llm.VendorOpenAI
	}
	return agent.TurnConfig{
		MaxRoundTrips: a.Config.Agent.MaxRoundTrips,
		Stream:        a.Config.Provider.Stream,
		Vendor:        vendor,
		ToolTimeout:   timeout,
	}, nil
}

// Get returns the global app instance and panics if not initialized
func Get() *App {
	mu.RLock()
	defer mu.RUnlock()

	if globalApp == nil {
		panic("app not initialized")
	}
	return globalApp
}

// TryGet returns the global app instance and a boolean indicating if it's initialized
func TryGet() (*App, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return globalApp, globalApp != nil
}

// Cleanup stops plugin servers and closes the log file.
func Cleanup() error {
	mu.Lock()
	defer mu.Unlock()

	if globalApp == nil {
		return nil
	}
	var firstErr error
	if globalApp.Registry != nil {
		firstErr = globalApp.Registry.Close()
	}
	if globalApp.closer != nil {
		if err := globalApp.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func parseLevel(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(cfg config.Log) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.LogLevel),
		AddSource: true,
	}

	if cfg.LogFile == "" {
		// stderr keeps stdout for the answer text
		handler := slog.NewTextHandler(os.Stderr, opts)
		return slog.New(handler), nil, nil
	}

	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open log file")
	}

	handler := slog.NewTextHandler(file, opts)
	return slog.New(handler), file, nil
}
