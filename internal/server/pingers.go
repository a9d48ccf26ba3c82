package server

import (
	"context"
	"fmt"

	"github.com/54b3r/ciai-go/internal/provider"
	"github.com/54b3r/ciai-go/internal/rag"
)

// LLMPinger checks a chat backend through its zero-cost health endpoint.
// It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// healthCheck is the backend check.
	healthCheck provider.HealthChecker
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given check and backend name.
// It returns nil when hc is nil so callers can skip backends without a check.
func NewLLMPinger(hc provider.HealthChecker, name string) *LLMPinger {
	if hc == nil {
		return nil
	}
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// indexStore is the part of a vector store the readiness check needs.
type indexStore interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (rag.Stats, error)
}

// IndexPinger checks the vector store and reports the index the query
// pipeline reads from, with its vector count.
type IndexPinger struct {
	store   indexStore
	backend string
	index   string
}

// NewIndexPinger labels the check with the backend and index name of cfg.
func NewIndexPinger(store indexStore, cfg rag.StoreConfig) *IndexPinger {
	backend := cfg.Backend
	if backend == "" {
		backend = rag.BackendQdrant
	}
	return &IndexPinger{store: store, backend: backend, index: cfg.IndexName()}
}

// Name returns the store backend ("qdrant" or "chromem").
func (p *IndexPinger) Name() string { return p.backend }

// Ping calls the store's health check.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CheckIndex pings the store and counts the vectors in the index. The
// returned status always names the index; Vectors is nil when the check
// failed.
func (p *IndexPinger) CheckIndex(ctx context.Context) (indexStatus, error) {
	st := indexStatus{Name: p.index}
	if err := p.Ping(ctx); err != nil {
		return st, err
	}
	stats, err := p.store.Stats(ctx)
	if err != nil {
		return st, fmt.Errorf("index %q stats: %w", p.index, err)
	}
	st.Vectors = &stats.TotalVectorCount
	return st, nil
}
