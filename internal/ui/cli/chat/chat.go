package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/isaacphi/toolturn/internal/agent"
	"github.com/isaacphi/toolturn/internal/appState"
	"github.com/isaacphi/toolturn/internal/config"
	"github.com/isaacphi/toolturn/internal/domain"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	pluginIDs    []string
	openAPIFiles []string
	baseURL      string
	showThinking bool

	ChatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message, or start an interactive session",
		Long: `Send one message and stream the answer, executing any tools the model calls.
Without a message, read prompts from stdin line by line and keep the conversation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app := appState.Get()
			toolIDs := append([]string(nil), pluginIDs...)
			for _, path := range openAPIFiles {
				id := "file-" + uuid.NewString()
				app.Registry.Add(id, config.Plugin{Path: path, BaseURL: baseURL})
				toolIDs = append(toolIDs, id)
			}

			s := &session{app: app, toolIDs: toolIDs, out: cmd.OutOrStdout(), status: cmd.ErrOrStderr()}
			if sys := app.Config.Agent.SystemMessage; sys != "" {
				s.history = append(s.history, domain.NewSystemMessage(sys))
			}

			if len(args) == 1 {
				return s.send(ctx, args[0])
			}
			return s.interactive(ctx, cmd.InOrStdin())
		},
	}
)

type session struct {
	app     *appState.App
	toolIDs []string
	history []domain.Message
	out     io.Writer
	status  io.Writer
}

// send runs one turn and keeps its messages when it completes.
func (s *session) send(ctx context.Context, text string) error {
	cfg, err := s.app.TurnConfig()
	if err != nil {
		return err
	}

	messages := append(append([]domain.Message(nil), s.history...), domain.NewUserMessage(text))
	p := &printer{out: s.out, status: s.status, showThinking: showThinking}
	res := s.app.Orchestrator.Run(ctx, messages, s.toolIDs, cfg, p)

	switch res.State {
	case agent.StateDone:
		s.history = res.Messages
		return nil
	case agent.StateCancelled:
		fmt.Fprintln(s.status, "\n[cancelled]")
		return nil
	default:
		return errors.Wrap(res.Err, "turn failed")
	}
}

func (s *session) interactive(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(s.status, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := s.send(ctx, line); err != nil {
				fmt.Fprintln(s.status, err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func init() {
	ChatCmd.Flags().StringSliceVarP(&pluginIDs, "plugin", "p", nil, "Plugin ids whose functions are offered to the model")
	ChatCmd.Flags().StringSliceVar(&openAPIFiles, "openapi", nil, "OpenAPI documents to offer as ad-hoc plugins")
	ChatCmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL for --openapi documents without servers")
	ChatCmd.Flags().BoolVar(&showThinking, "show-thinking", false, "Print reasoning text to stderr")

	ChatCmd.Flags().String("model", "", "Model name")
	ChatCmd.Flags().String("endpoint", "", "Chat completions URL")
	ChatCmd.Flags().Float64("temperature", 0, "Sampling temperature")
	ChatCmd.Flags().Bool("no-stream", false, "Request a single non-streamed response")
	ChatCmd.Flags().Bool("search", false, "Enable DashScope web search")
	ChatCmd.Flags().Int("max-round-trips", 0, "Maximum tool round trips per turn")
	ChatCmd.Flags().String("system", "", "System message")
}
