package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/54b3r/ciai-go/internal/extract"
	"github.com/54b3r/ciai-go/internal/rag"
	"github.com/54b3r/ciai-go/internal/tokens"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// fakeStore keeps records by id and remembers every batch it received.
type fakeStore struct {
	records map[string]rag.Record
	batches [][]rag.Record
	err     error
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]rag.Record{}} }

func (s *fakeStore) Upsert(_ context.Context, recs []rag.Record) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, recs)
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return nil
}

func (s *fakeStore) Query(context.Context, []float32, int) ([]rag.Match, error) { return nil, nil }

func (s *fakeStore) Stats(context.Context) (rag.Stats, error) {
	return rag.Stats{TotalVectorCount: uint64(len(s.records))}, nil
}

func (s *fakeStore) DeleteIndex(context.Context) error { s.records = map[string]rag.Record{}; return nil }
func (s *fakeStore) Close() error                      { return nil }

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, store *fakeStore, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, store, tokens.New(""), cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestRun_OnlyOneDocumentHasABlock(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"A": "# Pipelines\nNo code here.",
		"B": "Example:\n```yaml\nsteps: []\n```\n",
		"C": "```bash\necho hi\n```",
	})
	store := newFakeStore()
	p := newTestPipeline(t, &fakeEmbedder{}, store, &Config{Patterns: []string{"**/*"}})

	res, err := p.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Documents != 3 || res.Blocks != 1 || res.TotalVectors != 1 {
		t.Fatalf("Result = %+v", res)
	}

	var rec rag.Record
	for _, r := range store.records {
		rec = r
	}
	if rec.Metadata.Source != "B" {
		t.Errorf("source = %q, want B", rec.Metadata.Source)
	}
	if !strings.HasSuffix(rec.ID, "[1]") || rec.Metadata.ID != rec.ID {
		t.Errorf("id = %q, metadata id = %q", rec.ID, rec.Metadata.ID)
	}
	if rec.ID != "github.com/semaphore/docs/B[1]" {
		t.Errorf("id = %q", rec.ID)
	}
	if rec.Metadata.Text != "\nsteps: []\n" {
		t.Errorf("text = %q", rec.Metadata.Text)
	}
}

func TestRun_IdempotentIDs(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"docs/pipelines.md":  "```yaml\nversion: v1.0\n```\ntext\n```yaml\nblocks: []\n```",
		"docs/promotions.md": "```yaml\npromotions: []\n```",
		"empty.md":           "",
	})

	run := func(store *fakeStore) []string {
		p := newTestPipeline(t, &fakeEmbedder{}, store, nil)
		if _, err := p.Run(context.Background(), root); err != nil {
			t.Fatalf("Run: %v", err)
		}
		var ids []string
		for id := range store.records {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return ids
	}

	first := run(newFakeStore())
	want := []string{
		"github.com/semaphore/docs/docs/pipelines.md[1]",
		"github.com/semaphore/docs/docs/pipelines.md[2]",
		"github.com/semaphore/docs/docs/promotions.md[1]",
	}
	if !slices.Equal(first, want) {
		t.Fatalf("ids = %q, want %q", first, want)
	}

	shared := newFakeStore()
	run(shared)
	second := run(shared)
	if !slices.Equal(first, second) {
		t.Errorf("second run ids = %q", second)
	}
	if len(shared.records) != len(want) {
		t.Errorf("re-run duplicated records: %d", len(shared.records))
	}
}

func TestIndex_BatchSize(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	emb := &fakeEmbedder{}
	p := newTestPipeline(t, emb, store, &Config{BatchSize: 3})

	var blocks []Block
	for i := 1; i <= 7; i++ {
		blocks = append(blocks, Block{ID: BlockID("p", "x.md", i), Source: "x.md", Text: "k: v"})
	}
	n, err := p.Index(context.Background(), blocks)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 3 || emb.calls != 3 {
		t.Errorf("batches = %d, embed calls = %d, want 3", n, emb.calls)
	}
	sizes := []int{}
	for _, b := range store.batches {
		sizes = append(sizes, len(b))
	}
	if !slices.Equal(sizes, []int{3, 3, 1}) {
		t.Errorf("batch sizes = %v", sizes)
	}
	if store.batches[2][0].ID != "p/x.md[7]" {
		t.Errorf("order not preserved: %q", store.batches[2][0].ID)
	}
}

func TestIndex_FailuresAreFatal(t *testing.T) {
	t.Parallel()
	blocks := []Block{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}

	p := newTestPipeline(t, &fakeEmbedder{err: errors.New("rate limit")}, newFakeStore(), &Config{BatchSize: 1})
	if _, err := p.Index(context.Background(), blocks); err == nil {
		t.Error("embedding failure not returned")
	}

	store := newFakeStore()
	store.err = errors.New("unavailable")
	emb := &fakeEmbedder{}
	p = newTestPipeline(t, emb, store, &Config{BatchSize: 1})
	if _, err := p.Index(context.Background(), blocks); err == nil {
		t.Error("upsert failure not returned")
	}
	if emb.calls != 1 {
		t.Errorf("pipeline continued after failure: %d embed calls", emb.calls)
	}
}

func TestExtract_PartitionsOversizeBlocks(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	sb.WriteString("```yaml\n")
	for range 40 {
		sb.WriteString("- name: build and test the application\n")
	}
	sb.WriteString("```\n```yaml\nshort: true\n```")

	p := newTestPipeline(t, &fakeEmbedder{}, newFakeStore(), &Config{EmbedMaxTokens: 50})
	blocks, _, err := p.Extract(context.Background(), []Document{{RelPath: "big.md", Text: sb.String()}})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) < 3 {
		t.Fatalf("got %d blocks, want the first block split", len(blocks))
	}
	for i, b := range blocks {
		if want := BlockID(DefaultIDPrefix, "big.md", i+1); b.ID != want {
			t.Errorf("block %d id = %q, want %q", i, b.ID, want)
		}
	}
	if last := blocks[len(blocks)-1]; last.Text != "\nshort: true\n" {
		t.Errorf("last block = %q", last.Text)
	}
}

func TestExtract_BlankBlocksKeepOrdinalAndInvalidYAMLCounted(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeEmbedder{}, newFakeStore(), nil)
	docs := []Document{{RelPath: "a.md", Text: "```yaml\n  \n```\n```yaml\nkey: [unclosed\n```\n```yaml\nok: 1\n```"}}

	blocks, invalid, err := p.Extract(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[0].ID != BlockID(DefaultIDPrefix, "a.md", 2) || blocks[1].ID != BlockID(DefaultIDPrefix, "a.md", 3) {
		t.Errorf("ids = %q, %q; the blank first block should keep ordinal 1", blocks[0].ID, blocks[1].ID)
	}
	if invalid != 1 {
		t.Errorf("invalid = %d, want 1", invalid)
	}
}

func TestExtract_EmptyFenceBeforeBlock(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeEmbedder{}, newFakeStore(), nil)
	docs := []Document{{RelPath: "ci/go.md", Text: "```yaml\n```\ntext\n```yaml\nversion: v1.0\n```"}}

	blocks, _, err := p.Extract(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].ID != BlockID(DefaultIDPrefix, "ci/go.md", 2) {
		t.Errorf("blocks = %+v, want one block with ordinal 2", blocks)
	}
}

func TestExtract_MarkdownMode(t *testing.T) {
	t.Parallel()
	p := newTestPipeline(t, &fakeEmbedder{}, newFakeStore(), &Config{ExtractMode: extract.ModeMarkdown})
	blocks, _, err := p.Extract(context.Background(), []Document{{RelPath: "a.md", Text: "```yaml\nok: 1\n```\n"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].Text != "ok: 1\n" {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestWalk(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"b.md":          "b",
		"a/z.mdx":       "z",
		"a/nested/y.md": "y",
		"notes.txt":     "ignored",
	})
	docs, err := Walk(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, d := range docs {
		got = append(got, d.RelPath)
	}
	want := []string{"a/nested/y.md", "a/z.mdx", "b.md"}
	if !slices.Equal(got, want) {
		t.Errorf("paths = %q, want %q", got, want)
	}
}

func TestWalk_NotADirectory(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.md": "x"})
	if _, err := Walk(filepath.Join(root, "f.md"), nil); err == nil {
		t.Error("file root accepted")
	}
	if _, err := Walk(filepath.Join(root, "missing"), nil); err == nil {
		t.Error("missing root accepted")
	}
}

func TestBlockID(t *testing.T) {
	t.Parallel()
	if got := BlockID("github.com/semaphore/docs/", "ci/go.md", 3); got != "github.com/semaphore/docs/ci/go.md[3]" {
		t.Errorf("BlockID = %q", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CIAI_BATCH_SIZE", "5")
	t.Setenv("CIAI_ID_PREFIX", "example.com/docs")
	t.Setenv("CIAI_EMBED_MAX_TOKENS", "bogus")
	t.Setenv("CIAI_EXTRACT_MODE", "markdown")

	cfg := ConfigFromEnv()
	if cfg.BatchSize != 5 || cfg.IDPrefix != "example.com/docs" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.EmbedMaxTokens != DefaultEmbedMaxTokens {
		t.Errorf("unparseable value not ignored: %d", cfg.EmbedMaxTokens)
	}
	if cfg.ExtractMode != extract.ModeMarkdown {
		t.Errorf("ExtractMode = %q", cfg.ExtractMode)
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	acct := tokens.New("")
	if _, err := NewPipeline(nil, newFakeStore(), acct, nil); err == nil {
		t.Error("nil embedder accepted")
	}
	if _, err := NewPipeline(&fakeEmbedder{}, nil, acct, nil); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewPipeline(&fakeEmbedder{}, newFakeStore(), nil, nil); err == nil {
		t.Error("nil counter accepted")
	}
}
