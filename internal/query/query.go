// Package query implements the question-answering pipeline: retrieve scored
// documentation blocks for a task, pack them into a token-bounded context,
// build the prompt, check the request against the model window, and ask the
// chat model once.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ciai-go/internal/budget"
	"github.com/54b3r/ciai-go/internal/extract"
	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/prompt"
	"github.com/54b3r/ciai-go/internal/rag"
	"github.com/54b3r/ciai-go/internal/tokens"
)

// Config holds the query-time limits.
type Config struct {
	// TopK is how many matches to retrieve (default 30).
	TopK int

	// MinScore drops matches scoring below it (default 0.75).
	MinScore float32

	// ContextTokens bounds the packed context (default 3000).
	ContextTokens int

	// MaxModelTokens is the chat model's context window (default 4000).
	MaxModelTokens int

	// Encoding is the tokenizer used for the packed context (default cl100k_base).
	Encoding string

	// MessageModel names the model whose tokenizer counts the message list
	// (default gpt-3.5-turbo-0301).
	MessageModel string
}

// Defaults applied by DefaultConfig and NewPipeline.
const (
	DefaultTopK           = 30
	DefaultMinScore       = 0.75
	DefaultContextTokens  = 3000
	DefaultMaxModelTokens = 4000
	DefaultMessageModel   = "gpt-3.5-turbo-0301"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		TopK:           DefaultTopK,
		MinScore:       DefaultMinScore,
		ContextTokens:  DefaultContextTokens,
		MaxModelTokens: DefaultMaxModelTokens,
		Encoding:       tokens.DefaultEncoding,
		MessageModel:   DefaultMessageModel,
	}
}

// ConfigFromEnv overlays CIAI_TOP_K, CIAI_MIN_SCORE, CIAI_CONTEXT_TOKENS,
// CIAI_MAX_MODEL_TOKENS, CIAI_ENCODING and CIAI_MESSAGE_ENCODING_MODEL on
// the defaults. Unparseable values are ignored.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("CIAI_TOP_K")); err == nil && v > 0 {
		cfg.TopK = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("CIAI_MIN_SCORE"), 32); err == nil {
		cfg.MinScore = float32(v)
	}
	if v, err := strconv.Atoi(os.Getenv("CIAI_CONTEXT_TOKENS")); err == nil && v > 0 {
		cfg.ContextTokens = v
	}
	if v, err := strconv.Atoi(os.Getenv("CIAI_MAX_MODEL_TOKENS")); err == nil && v > 0 {
		cfg.MaxModelTokens = v
	}
	if v := os.Getenv("CIAI_ENCODING"); v != "" {
		cfg.Encoding = v
	}
	if v := os.Getenv("CIAI_MESSAGE_ENCODING_MODEL"); v != "" {
		cfg.MessageModel = v
	}
	return cfg
}

// Completer returns the single top answer for an ordered message list.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Counter counts tokens for both strings and message lists.
type Counter interface {
	budget.StringCounter
	budget.MessageCounter
}

// Result is the outcome of one completion.
type Result struct {
	// Answer is the model's reply with surrounding whitespace removed.
	Answer string

	// YAML holds the fenced YAML blocks found in Answer.
	YAML []string

	// Messages is the full conversation including the appended answer.
	Messages []*schema.Message

	// Packed is the context that was sent. It is zero for follow-ups.
	Packed budget.Packed

	// Matches is how many candidates the store returned.
	Matches int

	// PromptTokens is the counted size of the request.
	PromptTokens int
}

// Pipeline answers tasks. It holds no per-query state and is safe for
// concurrent use when its collaborators are.
type Pipeline struct {
	retriever rag.Retriever
	completer Completer
	counter   Counter
	cfg       *Config
}

// NewPipeline constructs a Pipeline. Zero config fields take their defaults.
func NewPipeline(retriever rag.Retriever, completer Completer, counter Counter, cfg *Config) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("query: retriever must not be nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("query: completer must not be nil")
	}
	if counter == nil {
		return nil, fmt.Errorf("query: token counter must not be nil")
	}

	resolved := DefaultConfig()
	if cfg != nil {
		c := *cfg
		if c.TopK <= 0 {
			c.TopK = resolved.TopK
		}
		if c.ContextTokens <= 0 {
			c.ContextTokens = resolved.ContextTokens
		}
		if c.MaxModelTokens <= 0 {
			c.MaxModelTokens = resolved.MaxModelTokens
		}
		if c.Encoding == "" {
			c.Encoding = resolved.Encoding
		}
		if c.MessageModel == "" {
			c.MessageModel = resolved.MessageModel
		}
		resolved = &c
	}

	return &Pipeline{retriever: retriever, completer: completer, counter: counter, cfg: resolved}, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config { return *p.cfg }

// Ask answers a single task in a fresh session.
func (p *Pipeline) Ask(ctx context.Context, task string) (*Result, error) {
	return p.NewSession().Ask(ctx, task)
}

// Session is one conversation: an initial task followed by any number of
// follow-ups, all appended to the same message list. It is not safe for
// concurrent use.
type Session struct {
	p        *Pipeline
	messages []*schema.Message
}

// NewSession starts an empty conversation.
func (p *Pipeline) NewSession() *Session {
	return &Session{p: p}
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []*schema.Message {
	return append([]*schema.Message(nil), s.messages...)
}

// Ask retrieves context for task, replaces the conversation with the system
// instruction and the built prompt, and completes it. Zero usable matches
// produce an empty context, not an error.
func (s *Session) Ask(ctx context.Context, task string) (*Result, error) {
	log := logging.FromContext(ctx)
	cfg := s.p.cfg

	matches, err := s.p.retriever.Retrieve(ctx, task, cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("query: retrieve: %w", err)
	}

	packed, err := budget.Pack(s.p.counter, matches, cfg.MinScore, cfg.ContextTokens, cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("query: pack context: %w", err)
	}
	log.Info("query: found contexts",
		slog.Int("contexts", packed.Included),
		slog.Int("candidates", len(matches)),
	)

	msgs := prompt.Initial(task, packed.Context)
	res, err := s.complete(ctx, msgs)
	if err != nil {
		return nil, err
	}
	res.Packed = packed
	res.Matches = len(matches)
	return res, nil
}

// FollowUp appends text as a user message to the conversation, re-checks
// the budget over the whole list, and completes again. No new context is
// retrieved. On error the conversation is left unchanged.
func (s *Session) FollowUp(ctx context.Context, text string) (*Result, error) {
	if len(s.messages) == 0 {
		return nil, fmt.Errorf("query: follow-up without an initial question")
	}
	msgs := append(s.Messages(), prompt.Message(schema.User, text))
	return s.complete(ctx, msgs)
}

func (s *Session) complete(ctx context.Context, msgs []*schema.Message) (*Result, error) {
	cfg := s.p.cfg

	n, err := budget.CheckMessages(s.p.counter, msgs, cfg.MessageModel, cfg.MaxModelTokens)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	logging.FromContext(ctx).Debug("query: request size", slog.Int("tokens", n), slog.Int("limit", cfg.MaxModelTokens))

	answer, err := s.p.completer.Complete(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("query: complete: %w", err)
	}

	msgs = append(msgs, prompt.Message(schema.Assistant, answer))
	s.messages = msgs

	return &Result{
		Answer:       answer,
		YAML:         extract.All(answer, extract.YAML),
		Messages:     s.Messages(),
		PromptTokens: n,
	}, nil
}
