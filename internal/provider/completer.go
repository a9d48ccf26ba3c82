package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Completer sends a message list to a chat model and returns the top answer.
// It is safe for concurrent use when the underlying model is.
type Completer struct {
	model       model.BaseChatModel
	name        string
	temperature float32
	handlers    []callbacks.Handler
}

// CompleterOption customises a Completer.
type CompleterOption func(*Completer)

// WithCallbacks attaches eino callback handlers (e.g. Langfuse tracing) to
// every completion.
func WithCallbacks(h ...callbacks.Handler) CompleterOption {
	return func(c *Completer) {
		for _, handler := range h {
			if handler != nil {
				c.handlers = append(c.handlers, handler)
			}
		}
	}
}

// NewCompleter wraps m. name labels the run in traces; temperature is sent
// with every request.
func NewCompleter(m model.BaseChatModel, name string, temperature float32, opts ...CompleterOption) *Completer {
	c := &Completer{model: m, name: name, temperature: temperature}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewCompleterFromConfig builds the backend named by cfg and wraps it.
func NewCompleterFromConfig(ctx context.Context, cfg *Config, opts ...CompleterOption) (*Completer, error) {
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCompleter(m, string(cfg.Backend)+"/"+cfg.ModelName(), cfg.Tuning.Temperature, opts...), nil
}

// Complete issues one completion for msgs and returns the answer with
// surrounding whitespace removed.
func (c *Completer) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	if len(c.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      c.name,
			Type:      "Completer",
			Component: components.ComponentOfChatModel,
		}, c.handlers...)
	}

	resp, err := c.model.Generate(ctx, msgs, model.WithTemperature(c.temperature))
	if err != nil {
		return "", fmt.Errorf("provider: completion failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("provider: completion returned no message")
	}
	return strings.TrimSpace(resp.Content), nil
}
