package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/query"
)

// NewQueryCmd constructs the `ciai query` command, which answers one task
// and optionally continues the conversation with follow-ups read from stdin.
func NewQueryCmd() *cobra.Command {
	var (
		chat     bool
		plain    bool
		yamlOnly bool
	)

	cmd := &cobra.Command{
		Use:   "query <task>",
		Short: "Write a CI pipeline for a task using the indexed documentation",
		Long: `Retrieve the documentation blocks most similar to the task, pack the ones
scoring at least CIAI_MIN_SCORE into a context of at most CIAI_CONTEXT_TOKENS
tokens, and ask the chat model for the pipeline YAML.

With --chat, each further line typed on stdin is sent as a follow-up in the
same conversation. An empty line or EOF ends the session.

Examples:
  ciai query "build and test a Go project on every push"
  ciai query --yaml-only "run rspec in parallel" > .semaphore/semaphore.yml
  ciai query --chat "deploy a Docker image to ECR"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if plain && yamlOnly {
				return fmt.Errorf("query: --plain and --yaml-only are mutually exclusive")
			}
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			deps, err := buildQueryPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer deps.close()

			mode := outputStyled
			switch {
			case plain:
				mode = outputPlain
			case yamlOnly:
				mode = outputYAML
			}

			session := deps.pipeline.NewSession()
			res, err := session.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderResult(cmd.OutOrStdout(), res, mode)

			if !chat {
				return nil
			}
			return followUpLoop(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout(), mode)
		},
	}

	cmd.Flags().BoolVar(&chat, "chat", false, "Keep the conversation open for follow-up messages from stdin")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print only the answer, without styling")
	cmd.Flags().BoolVar(&yamlOnly, "yaml-only", false, "Print only the YAML blocks of the answer")

	return cmd
}

// followUper is the part of query.Session the chat loop needs.
type followUper interface {
	FollowUp(ctx context.Context, text string) (*query.Result, error)
}

// followUpLoop reads one follow-up per line until an empty line or EOF.
// A failed follow-up ends the loop with its error.
func followUpLoop(ctx context.Context, s followUper, in io.Reader, out io.Writer, mode outputMode) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}
		res, err := s.FollowUp(ctx, text)
		if err != nil {
			return err
		}
		renderResult(out, res, mode)
	}
}
