// Package ingestion implements the indexing pipeline. It walks a documentation
// tree, extracts fenced YAML blocks from every document, splits blocks that
// exceed the embedding model's input limit, embeds them in fixed-size
// batches, and upserts the results into the vector store.
// This pipeline is invoked by the `ciai index` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/ciai-go/internal/budget"
	"github.com/54b3r/ciai-go/internal/extract"
	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/rag"
	"github.com/54b3r/ciai-go/internal/tokens"
)

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// IDPrefix is prepended to every block id (default
	// "github.com/semaphore/docs").
	IDPrefix string

	// BatchSize is the number of blocks embedded and upserted per request
	// (default 20).
	BatchSize int

	// EmbedMaxTokens is the embedding model's input limit. Larger blocks
	// are partitioned (default 8191).
	EmbedMaxTokens int

	// Encoding names the tokenizer of the embedding model (default cl100k_base).
	Encoding string

	// Fence is the block grammar to extract (default ```yaml ... ```).
	Fence extract.Fence

	// ExtractMode selects the pattern scan or Markdown parsing (default regex).
	ExtractMode extract.Mode

	// Patterns select the documents to read (default **/*.md, **/*.mdx).
	Patterns []string
}

// Defaults applied by DefaultConfig and NewPipeline.
const (
	DefaultIDPrefix       = "github.com/semaphore/docs"
	DefaultBatchSize      = 20
	DefaultEmbedMaxTokens = 8191
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		IDPrefix:       DefaultIDPrefix,
		BatchSize:      DefaultBatchSize,
		EmbedMaxTokens: DefaultEmbedMaxTokens,
		Encoding:       tokens.DefaultEncoding,
		Fence:          extract.YAML,
		ExtractMode:    extract.ModeRegex,
		Patterns:       DefaultPatterns,
	}
}

// ConfigFromEnv overlays CIAI_ID_PREFIX, CIAI_BATCH_SIZE,
// CIAI_EMBED_MAX_TOKENS, CIAI_ENCODING and CIAI_EXTRACT_MODE on the defaults.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv("CIAI_ID_PREFIX"); v != "" {
		cfg.IDPrefix = v
	}
	if v, err := strconv.Atoi(os.Getenv("CIAI_BATCH_SIZE")); err == nil && v > 0 {
		cfg.BatchSize = v
	}
	if v, err := strconv.Atoi(os.Getenv("CIAI_EMBED_MAX_TOKENS")); err == nil && v > 0 {
		cfg.EmbedMaxTokens = v
	}
	if v := os.Getenv("CIAI_ENCODING"); v != "" {
		cfg.Encoding = v
	}
	if v := os.Getenv("CIAI_EXTRACT_MODE"); v != "" {
		cfg.ExtractMode = extract.Mode(v)
	}
	return cfg
}

// Block is one extracted unit ready to embed.
type Block struct {
	// ID is "<prefix>/<relative_path>[<ordinal>]", ordinal 1-based per document.
	ID     string
	Source string
	Text   string
}

// BlockID builds the stable id of the ordinal-th block of relPath.
func BlockID(prefix, relPath string, ordinal int) string {
	return strings.TrimSuffix(prefix, "/") + "/" + relPath + "[" + strconv.Itoa(ordinal) + "]"
}

// Result summarises an indexing run.
type Result struct {
	Documents   int
	Blocks      int
	Batches     int
	InvalidYAML int

	// TotalVectors is the store's vector count after the run.
	TotalVectors uint64
}

// Pipeline orchestrates the walk → extract → partition → embed → upsert flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	counter  budget.StringCounter
	cfg      *Config
	reporter Reporter
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithReporter sets the progress reporter. The default reports nothing.
func WithReporter(r Reporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.reporter = r
		}
	}
}

// NewPipeline constructs a Pipeline from the provided collaborators and
// config. Zero config fields take their defaults.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, counter budget.StringCounter, cfg *Config, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if counter == nil {
		return nil, fmt.Errorf("ingestion: token counter must not be nil")
	}

	resolved := DefaultConfig()
	if cfg != nil {
		c := *cfg
		if c.IDPrefix == "" {
			c.IDPrefix = resolved.IDPrefix
		}
		if c.BatchSize <= 0 {
			c.BatchSize = resolved.BatchSize
		}
		if c.EmbedMaxTokens <= 0 {
			c.EmbedMaxTokens = resolved.EmbedMaxTokens
		}
		if c.Encoding == "" {
			c.Encoding = resolved.Encoding
		}
		if c.Fence.Marker == "" {
			c.Fence = resolved.Fence
		}
		if c.ExtractMode == "" {
			c.ExtractMode = resolved.ExtractMode
		}
		if len(c.Patterns) == 0 {
			c.Patterns = resolved.Patterns
		}
		resolved = &c
	}

	p := &Pipeline{
		embedder: embedder,
		store:    store,
		counter:  counter,
		cfg:      resolved,
		reporter: nopReporter{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config { return *p.cfg }

// Run indexes every document under root. Batches are embedded and upserted
// one at a time in document order; the first failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, root string) (Result, error) {
	log := logging.FromContext(ctx)

	docs, err := Walk(root, p.cfg.Patterns)
	if err != nil {
		return Result{}, err
	}
	log.Info("ingestion: documents found", slog.String("root", root), slog.Int("documents", len(docs)))

	blocks, invalid, err := p.Extract(ctx, docs)
	if err != nil {
		return Result{}, err
	}
	res := Result{Documents: len(docs), Blocks: len(blocks), InvalidYAML: invalid}

	batches, err := p.Index(ctx, blocks)
	res.Batches = batches
	if err != nil {
		return res, err
	}

	stats, err := p.store.Stats(ctx)
	if err != nil {
		return res, fmt.Errorf("ingestion: stats: %w", err)
	}
	res.TotalVectors = stats.TotalVectorCount
	log.Info("ingestion: complete",
		slog.Int("blocks", res.Blocks),
		slog.Int("batches", res.Batches),
		slog.Uint64("total_vectors", res.TotalVectors),
	)
	return res, nil
}

// Extract turns documents into blocks. Empty documents and whitespace-only
// blocks are skipped, though a skipped block still uses up its ordinal;
// blocks above EmbedMaxTokens are partitioned and each resulting unit gets
// its own ordinal. It also returns how many blocks did
// not parse as YAML; those are still indexed.
func (p *Pipeline) Extract(ctx context.Context, docs []Document) ([]Block, int, error) {
	log := logging.FromContext(ctx)
	p.reporter.Start(len(docs), "extracting")
	defer p.reporter.Finish()

	var (
		blocks  []Block
		invalid int
	)
	for _, doc := range docs {
		p.reporter.Advance(1)
		if doc.Text == "" {
			continue
		}

		ordinal := 0
		for _, raw := range extract.Extract(doc.Text, p.cfg.Fence, p.cfg.ExtractMode) {
			if strings.TrimSpace(raw) == "" {
				// Not indexed, but it keeps its ordinal so later ids stay
				// aligned with the block's position in the document.
				ordinal++
				continue
			}
			if !validYAML(raw) {
				invalid++
				log.Warn("ingestion: block is not valid YAML, indexing anyway",
					slog.String("source", doc.RelPath),
					slog.Int("ordinal", ordinal+1),
				)
			}

			units, err := budget.Partition(p.counter, raw, p.cfg.EmbedMaxTokens, p.cfg.Encoding)
			if err != nil {
				return nil, invalid, fmt.Errorf("ingestion: partition %s: %w", doc.RelPath, err)
			}
			for _, u := range units {
				ordinal++
				blocks = append(blocks, Block{
					ID:     BlockID(p.cfg.IDPrefix, doc.RelPath, ordinal),
					Source: doc.RelPath,
					Text:   u,
				})
			}
		}
	}
	return blocks, invalid, nil
}

// Index embeds and upserts blocks in batches of BatchSize and returns the
// number of batches written.
func (p *Pipeline) Index(ctx context.Context, blocks []Block) (int, error) {
	p.reporter.Start(len(blocks), "embedding")
	defer p.reporter.Finish()

	batches := 0
	for start := 0; start < len(blocks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(blocks))
		batch := blocks[start:end]

		texts := make([]string, len(batch))
		for i, b := range batch {
			texts[i] = b.Text
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return batches, fmt.Errorf("ingestion: embedding batch %d failed: %w", batches+1, err)
		}
		if len(vectors) != len(batch) {
			return batches, fmt.Errorf("ingestion: embedder returned %d vectors for %d blocks", len(vectors), len(batch))
		}

		records := make([]rag.Record, len(batch))
		for i, b := range batch {
			records[i] = rag.Record{
				ID:     b.ID,
				Vector: vectors[i],
				Metadata: rag.Metadata{
					ID:     b.ID,
					Text:   b.Text,
					Source: b.Source,
				},
			}
		}
		if err := p.store.Upsert(ctx, records); err != nil {
			return batches, fmt.Errorf("ingestion: upsert batch %d failed: %w", batches+1, err)
		}
		batches++
		p.reporter.Advance(len(batch))
	}
	return batches, nil
}

func validYAML(s string) bool {
	var v any
	return yaml.Unmarshal([]byte(s), &v) == nil
}
