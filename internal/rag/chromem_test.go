package rag

import (
	"context"
	"testing"
)

func newTestChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(ChromemConfig{Path: t.TempDir(), Collection: "test"})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return s
}

func record(id string, vec ...float32) Record {
	return Record{
		ID:       id,
		Vector:   vec,
		Metadata: Metadata{ID: id, Text: "text of " + id, Source: "docs/" + id + ".md"},
	}
}

func TestChromemStore_UpsertQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestChromem(t)

	err := s.Upsert(ctx, []Record{
		record("a", 1, 0, 0),
		record("b", 0, 1, 0),
		record("c", 0.9, 0.1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("len = %d, want 3 (topK clamped to count)", len(matches))
	}
	if matches[0].ID != "a" || matches[1].ID != "c" {
		t.Errorf("order = %s, %s, %s; want a, c, b", matches[0].ID, matches[1].ID, matches[2].ID)
	}
	if matches[0].Metadata != (Metadata{ID: "a", Text: "text of a", Source: "docs/a.md"}) {
		t.Errorf("metadata = %+v", matches[0].Metadata)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestChromemStore_UpsertOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestChromem(t)

	for range 2 {
		if err := s.Upsert(ctx, []Record{record("a", 1, 0), record("b", 0, 1)}); err != nil {
			t.Fatal(err)
		}
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalVectorCount != 2 {
		t.Errorf("TotalVectorCount = %d, want 2", st.TotalVectorCount)
	}
}

func TestChromemStore_EmptyAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestChromem(t)

	matches, err := s.Query(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Query on empty index: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("len = %d, want 0", len(matches))
	}

	if err := s.Upsert(ctx, []Record{record("a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteIndex(ctx); err != nil {
		t.Fatalf("DeleteIndex: %v", err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalVectorCount != 0 {
		t.Errorf("TotalVectorCount after delete = %d, want 0", st.TotalVectorCount)
	}
}

func TestChromemStore_RequiresCollection(t *testing.T) {
	t.Parallel()
	if _, err := NewChromemStore(ChromemConfig{}); err == nil {
		t.Fatal("expected error for empty collection name")
	}
}
