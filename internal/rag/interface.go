// Package rag defines the retrieval collaborators used by the indexing and
// query pipelines: vector storage, embedding, and retrieval.
// Concrete stores (Qdrant, chromem) satisfy these interfaces so the pipelines
// never depend on a specific backend.
package rag

import (
	"context"
)

// Metadata is stored alongside every vector. ID duplicates the record id so a
// match can be traced back without a second lookup.
type Metadata struct {
	// ID is the record id, "<prefix>/<relative_path>[<ordinal>]".
	ID string `json:"id"`

	// Text is the indexed block text, returned verbatim on retrieval.
	Text string `json:"text"`

	// Source is the document path relative to the indexed root.
	Source string `json:"source"`
}

// Record is one embedded unit ready for upsert.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a scored record returned by a similarity query.
type Match struct {
	ID string

	// Score is the store's similarity score. For cosine distance this lies
	// in [0,1] for normalised embeddings.
	Score float32

	Metadata Metadata
}

// Stats summarises the contents of an index.
type Stats struct {
	TotalVectorCount uint64
}

// VectorStore persists and searches embeddings under one fixed index name.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or overwrites records by id. Re-upserting an existing
	// id replaces it; it never creates a duplicate.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK matches for vector, ordered by descending
	// score. The order is the store's; callers do not re-sort.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Stats reports the number of stored vectors.
	Stats(ctx context.Context) (Stats, error)

	// DeleteIndex drops the whole index. Deleting a missing index is not
	// an error.
	DeleteIndex(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings. The returned
	// slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches scored candidate passages for a free-text query. It
// combines embedding and vector search.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Match, error)
}
