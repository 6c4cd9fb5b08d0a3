package appState

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/isaacphi/toolturn/internal/config"
	"github.com/isaacphi/toolturn/internal/llm"
)

func testConfig() *config.ConfigSchema {
	return &config.ConfigSchema{
		Provider: config.Provider{Model: "qwen-plus", Stream: true, Timeout: "30s"},
		Agent:    config.Agent{MaxRoundTrips: 4, ToolTimeout: "5s"},
		Plugins:  map[string]config.Plugin{},
	}
}

func TestBuildWiresServices(t *testing.T) {
	app, err := build(testConfig(), slog.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if app.Transport == nil || app.Registry == nil || app.Orchestrator == nil {
		t.Fatalf("unwired app: %+v", app)
	}
	if _, ok := app.Transport.(*llm.HTTPTransport); !ok {
		t.Errorf("transport = %T", app.Transport)
	}
	if _, ok := app.Registry.Plugin("alibaba-search"); !ok {
		t.Error("builtin plugin missing from registry")
	}
}

func TestBuildRejectsBadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Timeout = "soon"
	if _, err := build(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for unparsable timeout")
	}
}

func TestTurnConfig(t *testing.T) {
	app := &App{Config: testConfig()}
	tc, err := app.TurnConfig()
	if err != nil {
		t.Fatal(err)
	}
	if tc.MaxRoundTrips != 4 || !tc.Stream || tc.ToolTimeout != 5*time.Second || tc.Vendor != llm.VendorOpenAI {
		t.Errorf("turn config = %+v", tc)
	}

	app.Config.Provider.Vendor = "dashscope"
	tc, _ = app.TurnConfig()
	if tc.Vendor != llm.VendorDashScope {
		t.Errorf("vendor = %q", tc.Vendor)
	}
}

func TestSetupLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolturn.log")
	logger, closer, err := setupLogger(config.Log{LogLevel: "WARN", LogFile: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log file = %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
