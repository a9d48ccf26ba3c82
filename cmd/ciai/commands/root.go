// Package commands defines all Cobra CLI commands for the ciai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/ciai-go/internal/audit"
	"github.com/54b3r/ciai-go/internal/config"
	"github.com/54b3r/ciai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ciai",
		Short: "ciai writes CI pipeline YAML from documentation-grounded prompts",
		Long: `ciai indexes the YAML examples found in a documentation tree into a
vector store, then answers pipeline-authoring tasks by retrieving the most
relevant examples and handing them to a chat model as context.

Model and embedding providers are selected with MODEL_PROVIDER and
EMBEDDING_PROVIDER, or with a YAML config file (~/.ciai/config.yaml).
See 'ciai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}

			// Rebuild so LOG_LEVEL/LOG_FORMAT from the file take effect.
			log := logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ciai/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewQueryCmd(),
		NewDeleteIndexCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
