package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/ciai-go/internal/embedder"
	"github.com/54b3r/ciai-go/internal/provider"
	"github.com/54b3r/ciai-go/internal/query"
	"github.com/54b3r/ciai-go/internal/rag"
	"github.com/54b3r/ciai-go/internal/retry"
	"github.com/54b3r/ciai-go/internal/tokens"
	"github.com/54b3r/ciai-go/internal/tracing"
)

// openStore connects the configured vector store. The Qdrant collection is
// sized for the configured embedding backend.
func openStore(log *slog.Logger) (rag.PingableStore, rag.StoreConfig, error) {
	dims := embedder.DefaultDimensions(embedder.Backend())
	cfg := rag.StoreConfigFromEnv(dims)

	store, err := rag.NewStore(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("failed to open %s vector store: %w", cfg.Backend, err)
	}
	log.Info("vector store ready",
		slog.String("backend", cfg.Backend),
		slog.String("index", cfg.IndexName()),
		slog.Int("dimensions", dims),
	)
	return store, cfg, nil
}

// buildEmbedder constructs the embedding client behind the retry wrapper.
func buildEmbedder(log *slog.Logger, policy retry.Policy) (rag.Embedder, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embedder.Backend()))
	return &retry.Embedder{Next: emb, Policy: policy}, nil
}

// queryDeps is everything a query run needs, plus what serve checks.
type queryDeps struct {
	pipeline    *query.Pipeline
	store       rag.PingableStore
	storeCfg    rag.StoreConfig
	providerCfg *provider.Config
	close       func()
}

// buildQueryPipeline wires store, embedder, tokenizer and chat model into a
// query.Pipeline. The returned close func releases the store and flushes
// traces; it is safe to call once.
func buildQueryPipeline(ctx context.Context, log *slog.Logger) (*queryDeps, error) {
	policy := retry.PolicyFromEnv()

	store, storeCfg, err := openStore(log)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(log, policy)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	qcfg := query.ConfigFromEnv()
	retriever, err := rag.NewRetriever(emb, &retry.Store{Next: store, Policy: policy}, qcfg.TopK)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	providerCfg := provider.ConfigFromEnv()
	if err := providerCfg.Validate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	handler, flush, traced := tracing.Setup(log)
	var opts []provider.CompleterOption
	if traced {
		opts = append(opts, provider.WithCallbacks(handler))
	}
	completer, err := provider.NewCompleterFromConfig(ctx, providerCfg, opts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	pipeline, err := query.NewPipeline(
		retriever,
		&retry.Completer{Next: completer, Policy: policy},
		tokens.New(qcfg.Encoding),
		qcfg,
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &queryDeps{
		pipeline:    pipeline,
		store:       store,
		storeCfg:    storeCfg,
		providerCfg: providerCfg,
		close: func() {
			flush()
			_ = store.Close()
		},
	}, nil
}
