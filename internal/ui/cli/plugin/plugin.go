package plugin

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/isaacphi/toolturn/internal/appState"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var PluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect tool plugins",
	Long:  "List the configured OpenAPI and MCP plugins and the functions they expose.",
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List plugins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tVERSION\tKIND\t")
		for _, p := range appState.Get().Registry.Plugins() {
			id := p.ID
			if p.Builtin {
				id += " (builtin)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", id, p.Title, p.Version, p.Kind)
		}
		return w.Flush()
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools <plugin-id>",
	Short: "Show the functions a plugin exposes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schemas, err := appState.Get().Registry.Functions(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := make([]map[string]any, 0, len(schemas))
		for _, s := range schemas {
			out = append(out, map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			})
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(out)
	},
}

func init() {
	PluginCmd.AddCommand(lsCmd, toolsCmd)
}
