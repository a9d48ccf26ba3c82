package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ciai-go/internal/budget"
	"github.com/54b3r/ciai-go/internal/prompt"
	"github.com/54b3r/ciai-go/internal/rag"
)

type fakeRetriever struct {
	matches []rag.Match
	err     error
	gotK    int
	gotText string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]rag.Match, error) {
	f.gotText, f.gotK = query, topK
	return f.matches, f.err
}

type fakeCompleter struct {
	answer string
	err    error
	calls  int
	got    []*schema.Message
}

func (f *fakeCompleter) Complete(_ context.Context, msgs []*schema.Message) (string, error) {
	f.calls++
	f.got = msgs
	return f.answer, f.err
}

// wordCounter counts whitespace-separated words in strings and in every
// message's content.
type wordCounter struct{}

func (wordCounter) CountString(text, _ string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (wordCounter) CountMessages(msgs []*schema.Message, _ string) (int, error) {
	n := 0
	for _, m := range msgs {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

func match(score float32, text string) rag.Match {
	return rag.Match{Score: score, Metadata: rag.Metadata{Text: text}}
}

func newPipeline(t *testing.T, r rag.Retriever, c Completer, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(r, c, wordCounter{}, cfg)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestAsk_BuildsPromptFromContext(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{matches: []rag.Match{
		match(0.9, "blocks: []"),
		match(0.2, "ignored"),
	}}
	c := &fakeCompleter{answer: "```yaml\nversion: v1.0\n```"}
	p := newPipeline(t, r, c, nil)

	res, err := p.Ask(context.Background(), "build a go project")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if r.gotK != DefaultTopK || r.gotText != "build a go project" {
		t.Errorf("Retrieve(%q, %d), want (%q, %d)", r.gotText, r.gotK, "build a go project", DefaultTopK)
	}
	if c.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", c.calls)
	}
	if len(c.got) != 2 || c.got[0].Role != schema.System || c.got[1].Role != schema.User {
		t.Fatalf("unexpected request messages: %+v", c.got)
	}
	wantCtx := budget.Separator + "blocks: []"
	if c.got[1].Content != prompt.Build("build a go project", wantCtx) {
		t.Errorf("user message = %q", c.got[1].Content)
	}
	if res.Packed.Included != 1 || res.Matches != 2 {
		t.Errorf("Included = %d, Matches = %d, want 1, 2", res.Packed.Included, res.Matches)
	}
	if len(res.YAML) != 1 || res.YAML[0] != "\nversion: v1.0\n" {
		t.Errorf("YAML = %q", res.YAML)
	}
	if len(res.Messages) != 3 || res.Messages[2].Role != schema.Assistant || res.Messages[2].Content != res.Answer {
		t.Errorf("answer not appended: %+v", res.Messages)
	}
}

func TestAsk_NoUsableMatchesProceedsWithEmptyContext(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{matches: []rag.Match{match(0.1, "a"), match(0.5, "b")}}
	c := &fakeCompleter{answer: "ok"}
	p := newPipeline(t, r, c, nil)

	res, err := p.Ask(context.Background(), "task")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Packed.Context != "" || res.Packed.Included != 0 {
		t.Errorf("Packed = %+v, want empty", res.Packed)
	}
	if c.got[1].Content != prompt.Build("task", "") {
		t.Errorf("user message = %q", c.got[1].Content)
	}
}

func TestAsk_BudgetExceededSkipsCompletion(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{}
	c := &fakeCompleter{answer: "never"}
	p := newPipeline(t, r, c, &Config{MaxModelTokens: 5})

	_, err := p.Ask(context.Background(), "a task long enough to go over five words")
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if c.calls != 0 {
		t.Errorf("completer called %d times, want 0", c.calls)
	}
}

func TestAsk_Errors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		r    *fakeRetriever
		c    *fakeCompleter
		want string
	}{
		{"retrieve", &fakeRetriever{err: errors.New("store down")}, &fakeCompleter{}, "retrieve"},
		{"complete", &fakeRetriever{}, &fakeCompleter{err: errors.New("429")}, "complete"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newPipeline(t, tc.r, tc.c, nil)
			_, err := p.Ask(context.Background(), "task")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestSession_FollowUp(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{}
	c := &fakeCompleter{answer: "first"}
	p := newPipeline(t, r, c, nil)
	s := p.NewSession()

	if _, err := s.FollowUp(context.Background(), "too early"); err == nil {
		t.Fatal("expected error for follow-up before Ask")
	}

	if _, err := s.Ask(context.Background(), "task"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	c.answer = "second"
	res, err := s.FollowUp(context.Background(), "add caching")
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if len(c.got) != 4 || c.got[3].Role != schema.User || c.got[3].Content != "add caching" {
		t.Errorf("follow-up request = %+v", c.got)
	}
	if len(res.Messages) != 5 || res.Messages[4].Content != "second" {
		t.Errorf("Messages = %+v", res.Messages)
	}
	if len(s.Messages()) != 5 {
		t.Errorf("session holds %d messages, want 5", len(s.Messages()))
	}
}

func TestSession_FollowUpFailureLeavesConversation(t *testing.T) {
	t.Parallel()
	c := &fakeCompleter{answer: "ok"}
	p := newPipeline(t, &fakeRetriever{}, c, nil)
	s := p.NewSession()
	if _, err := s.Ask(context.Background(), "task"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	c.err = errors.New("boom")
	if _, err := s.FollowUp(context.Background(), "more"); err == nil {
		t.Fatal("expected error")
	}
	if len(s.Messages()) != 3 {
		t.Errorf("session holds %d messages after failure, want 3", len(s.Messages()))
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewPipeline(nil, &fakeCompleter{}, wordCounter{}, nil); err == nil {
		t.Error("expected error for nil retriever")
	}
	if _, err := NewPipeline(&fakeRetriever{}, nil, wordCounter{}, nil); err == nil {
		t.Error("expected error for nil completer")
	}
	if _, err := NewPipeline(&fakeRetriever{}, &fakeCompleter{}, nil, nil); err == nil {
		t.Error("expected error for nil counter")
	}

	p, err := NewPipeline(&fakeRetriever{}, &fakeCompleter{}, wordCounter{}, &Config{TopK: 5, MinScore: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	got := p.Config()
	if got.TopK != 5 || got.MinScore != 0.5 || got.ContextTokens != DefaultContextTokens || got.MessageModel != DefaultMessageModel {
		t.Errorf("Config = %+v", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CIAI_TOP_K", "10")
	t.Setenv("CIAI_MIN_SCORE", "0.5")
	t.Setenv("CIAI_CONTEXT_TOKENS", "bogus")
	t.Setenv("CIAI_MAX_MODEL_TOKENS", "8000")
	t.Setenv("CIAI_ENCODING", "")
	t.Setenv("CIAI_MESSAGE_ENCODING_MODEL", "gpt-4")

	cfg := ConfigFromEnv()
	if cfg.TopK != 10 || cfg.MinScore != 0.5 || cfg.ContextTokens != DefaultContextTokens ||
		cfg.MaxModelTokens != 8000 || cfg.Encoding != "cl100k_base" || cfg.MessageModel != "gpt-4" {
		t.Errorf("ConfigFromEnv = %+v", cfg)
	}
}
