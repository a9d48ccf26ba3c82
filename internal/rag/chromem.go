package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// errNoEmbedding is returned by the collection's embedding func. Records
// always carry precomputed vectors and queries always pass an embedding, so
// chromem never has to embed on its own.
var errNoEmbedding = errors.New("chromem: record has no precomputed embedding")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory the database persists to. Empty keeps the
	// index in memory for the life of the process.
	Path string

	// Collection is the index name.
	Collection string

	// Compress gzips the persisted documents.
	Compress bool
}

// ChromemStore implements VectorStore on chromem-go, an embedded vector
// database. It needs no server, which suits local runs and tests.
type ChromemStore struct {
	db   *chromem.DB
	name string

	mu  sync.Mutex
	col *chromem.Collection
}

// NewChromemStore opens (or creates) the database at cfg.Path.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("chromem: collection name is required")
	}

	db := chromem.NewDB()
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: open %q: %w", cfg.Path, err)
		}
	}
	return &ChromemStore{db: db, name: cfg.Collection}, nil
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %q: %w", s.name, err)
	}
	s.col = col
	return col, nil
}

// Upsert adds records; an existing id is replaced.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := s.collection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Metadata.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				payloadID:     r.Metadata.ID,
				payloadSource: r.Metadata.Source,
			},
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("chromem: upsert failed: %w", err)
	}
	return nil
}

// Query returns up to topK matches by cosine similarity, best first.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	col, err := s.collection()
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 || topK <= 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query failed: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:    r.ID,
			Score: r.Similarity,
			Metadata: Metadata{
				ID:     r.Metadata[payloadID],
				Text:   r.Content,
				Source: r.Metadata[payloadSource],
			},
		}
	}
	return matches, nil
}

// Stats reports the number of stored documents.
func (s *ChromemStore) Stats(context.Context) (Stats, error) {
	col, err := s.collection()
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalVectorCount: uint64(col.Count())}, nil
}

// DeleteIndex removes the collection and its persisted files.
func (s *ChromemStore) DeleteIndex(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("chromem: delete collection %q: %w", s.name, err)
	}
	s.col = nil
	return nil
}

// Ping always succeeds; the store is in-process.
func (s *ChromemStore) Ping(context.Context) error { return nil }

// Close is a no-op. Persistent databases write through on every upsert.
func (s *ChromemStore) Close() error { return nil }
