package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/isaacphi/toolturn/internal/appState"
	"github.com/isaacphi/toolturn/internal/config"
	"github.com/isaacphi/toolturn/internal/ui/cli/chat"
	configCmd "github.com/isaacphi/toolturn/internal/ui/cli/config"
	"github.com/isaacphi/toolturn/internal/ui/cli/plugin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:               "toolturn",
	Short:             "Chat with tool-calling models",
	Long:              `Stream chat turns from an OpenAI-compatible or DashScope endpoint, executing OpenAPI and MCP tools the model asks for.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// overridesFrom collects the flags a subcommand set explicitly. Subcommands
// declare the flags; only the changed ones override configuration.
func overridesFrom(flags *pflag.FlagSet) *config.RuntimeOverrides {
	o := &config.RuntimeOverrides{}
	if logLevel != "" {
		o.LogLevel = &logLevel
	}
	if logFile != "" {
		o.LogFile = &logFile
	}

	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}
	if changed("model") {
		v, _ := flags.GetString("model")
		o.Model = &v
	}
	if changed("endpoint") {
		v, _ := flags.GetString("endpoint")
		o.Endpoint = &v
	}
	if changed("temperature") {
		v, _ := flags.GetFloat64("temperature")
		o.Temperature = &v
	}
	if changed("no-stream") {
		v, _ := flags.GetBool("no-stream")
		stream := !v
		o.Stream = &stream
	}
	if changed("search") {
		v, _ := flags.GetBool("search")
		o.EnableSearch = &v
	}
	if changed("max-round-trips") {
		v, _ := flags.GetInt("max-round-trips")
		o.MaxRoundTrips = &v
	}
	if changed("system") {
		v, _ := flags.GetString("system")
		o.SystemMessage = &v
	}
	return o
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set logging level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (defaults to stderr)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return appState.Initialize(overridesFrom(cmd.Flags()))
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return appState.Cleanup()
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		configCmd.ConfigCmd,
		plugin.PluginCmd,
		chat.ChatCmd,
	)
}
