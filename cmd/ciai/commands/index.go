package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ciai-go/internal/embedder"
	"github.com/54b3r/ciai-go/internal/extract"
	"github.com/54b3r/ciai-go/internal/ingestion"
	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/retry"
	"github.com/54b3r/ciai-go/internal/tokens"
)

// NewIndexCmd constructs the `ciai index` command, which extracts the YAML
// examples of a documentation tree and stores their embeddings.
func NewIndexCmd() *cobra.Command {
	var (
		idPrefix    string
		batchSize   int
		extractMode string
		patterns    []string
	)

	cmd := &cobra.Command{
		Use:   "index <docs-dir>",
		Short: "Index the YAML examples of a documentation tree",
		Long: `Walk a documentation tree, extract every fenced YAML block, embed the
blocks in batches, and upsert them into the vector store.

Each block is stored under "<id-prefix>/<relative path>[<n>]", so running the
command again over the same tree overwrites the previous entries.

Relevant environment variables:
  VECTOR_BACKEND       qdrant (default) or chromem
  QDRANT_HOST/PORT     Qdrant gRPC endpoint (default localhost:6334)
  CHROMEM_PATH         On-disk directory for the embedded store
  CIAI_INDEX_NAME      Index name (default: semaphore)
  EMBEDDING_PROVIDER   openai, azure or ollama
  CIAI_BATCH_SIZE      Blocks per embedding request (default: 20)

Examples:
  ciai index ./docs
  ciai index --extract-mode markdown --id-prefix github.com/acme/docs ./docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			cfg := ingestion.ConfigFromEnv()
			if cmd.Flags().Changed("id-prefix") {
				cfg.IDPrefix = idPrefix
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("extract-mode") {
				cfg.ExtractMode = extract.Mode(extractMode)
			}
			if len(patterns) > 0 {
				cfg.Patterns = patterns
			}
			if cfg.ExtractMode != extract.ModeRegex && cfg.ExtractMode != extract.ModeMarkdown {
				return fmt.Errorf("index: unknown extract mode %q (valid: regex, markdown)", cfg.ExtractMode)
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			policy := retry.PolicyFromEnv()
			emb, err := buildEmbedder(log, policy)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			store, _, err := openStore(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(
				emb,
				&retry.Store{Next: store, Policy: policy},
				tokens.New(cfg.Encoding),
				cfg,
				ingestion.WithReporter(ingestion.NewReporter(log)),
			)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			res, err := pipeline.Run(ctx, args[0])
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			if res.InvalidYAML > 0 {
				log.Warn("index: some blocks did not parse as YAML", slog.Int("count", res.InvalidYAML))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d blocks from %d documents in %d batches (%d vectors in index)\n",
				res.Blocks, res.Documents, res.Batches, res.TotalVectors)
			return nil
		},
	}

	cmd.Flags().StringVar(&idPrefix, "id-prefix", ingestion.DefaultIDPrefix, "Prefix of every stored block id")
	cmd.Flags().IntVar(&batchSize, "batch-size", ingestion.DefaultBatchSize, "Blocks per embedding request")
	cmd.Flags().StringVar(&extractMode, "extract-mode", string(extract.ModeRegex), "Block extraction: regex or markdown")
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "Document glob relative to the tree (repeatable, default **/*.md and **/*.mdx)")

	return cmd
}
