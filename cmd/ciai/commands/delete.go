package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ciai-go/internal/logging"
)

// NewDeleteIndexCmd constructs the `ciai delete-index` command.
func NewDeleteIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-index",
		Short: "Delete the vector index and every stored block",
		Long: `Delete the index named by CIAI_INDEX_NAME (default: semaphore) from the
configured vector store. Deleting an index that does not exist succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, cfg, err := openStore(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("delete-index: %w", err)
			}
			defer store.Close()

			if err := store.DeleteIndex(ctx); err != nil {
				return fmt.Errorf("delete-index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted index %q (%s)\n", cfg.IndexName(), cfg.Backend)
			return nil
		},
	}
}
