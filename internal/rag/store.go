package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Vector store backends selectable with VECTOR_BACKEND.
const (
	BackendQdrant  = "qdrant"
	BackendChromem = "chromem"
)

// DefaultIndexName names the index when CIAI_INDEX_NAME is unset.
const DefaultIndexName = "semaphore"

// StoreConfig selects and configures a VectorStore backend.
type StoreConfig struct {
	Backend string
	Qdrant  QdrantConfig
	Chromem ChromemConfig
}

// StoreConfigFromEnv reads VECTOR_BACKEND, CIAI_INDEX_NAME, QDRANT_* and
// CHROMEM_PATH. vectorSize is the embedding dimension the Qdrant collection
// is created with.
func StoreConfigFromEnv(vectorSize int) StoreConfig {
	index := envOr("CIAI_INDEX_NAME", DefaultIndexName)
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	useTLS, _ := strconv.ParseBool(os.Getenv("QDRANT_USE_TLS"))
	compress, _ := strconv.ParseBool(os.Getenv("CHROMEM_COMPRESS"))

	return StoreConfig{
		Backend: envOr("VECTOR_BACKEND", BackendQdrant),
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       port,
			Collection: index,
			VectorSize: uint64(max(vectorSize, 0)),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     useTLS,
		},
		Chromem: ChromemConfig{
			Path:       os.Getenv("CHROMEM_PATH"),
			Collection: index,
			Compress:   compress,
		},
	}
}

// IndexName returns the index the configured backend addresses.
func (c StoreConfig) IndexName() string {
	if c.Backend == BackendChromem {
		return c.Chromem.Collection
	}
	return c.Qdrant.Collection
}

// PingableStore is a VectorStore that can report its reachability.
type PingableStore interface {
	VectorStore
	Ping(ctx context.Context) error
}

// NewStore constructs the backend named by cfg.Backend.
func NewStore(cfg StoreConfig) (PingableStore, error) {
	switch cfg.Backend {
	case BackendQdrant, "":
		return NewQdrantStore(cfg.Qdrant)
	case BackendChromem:
		return NewChromemStore(cfg.Chromem)
	default:
		return nil, fmt.Errorf("rag: unknown vector backend %q (valid: qdrant, chromem)", cfg.Backend)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
