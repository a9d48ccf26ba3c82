// Package tokens counts tokens the way the OpenAI APIs do, so that budgets
// computed locally match what the embedding and chat-completion services will
// enforce. Counts use tiktoken BPE tables bundled with the binary (offline
// loader), which makes them deterministic and network-free.
package tokens

import (
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// Chat accounting constants of the OpenAI chat-completion protocol
// (<|im_start|>{role}\n{content}<|im_end|>\n framing). A provider with a
// different framing needs different values.
const (
	// PerMessageOverhead is charged once for every message in a request.
	PerMessageOverhead = 4

	// ReplyPrimingOverhead is charged once per request for the
	// <|im_start|>assistant prefix the reply is primed with.
	ReplyPrimingOverhead = 2

	// NameAdjustment is applied to a message that carries a name: the name
	// replaces the role, which is always one token.
	NameAdjustment = -1
)

// DefaultEncoding is the BPE table used by text-embedding-ada-002 and the
// gpt-3.5/gpt-4 chat models.
const DefaultEncoding = "cl100k_base"

var loaderOnce sync.Once

// Accountant resolves and caches tiktoken encodings. It is safe for
// concurrent use.
type Accountant struct {
	// fallback is the encoding used when a model name is unknown.
	fallback string

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// New returns an Accountant that falls back to the named encoding for
// unknown models. An empty fallback selects DefaultEncoding.
func New(fallback string) *Accountant {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	if fallback == "" {
		fallback = DefaultEncoding
	}
	return &Accountant{
		fallback:  fallback,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// Fallback returns the encoding used for unknown models.
func (a *Accountant) Fallback() string { return a.fallback }

// CountString returns the number of tokens text encodes to under the named
// encoding. An unknown encoding is an error: without it no budget can be
// enforced.
func (a *Accountant) CountString(text, encoding string) (int, error) {
	enc, err := a.encoding(encoding)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages returns the prompt size of msgs when sent to model:
// PerMessageOverhead plus content tokens for each message, name tokens and
// NameAdjustment for named messages, and one ReplyPrimingOverhead.
// A model tiktoken does not know is counted with the fallback encoding.
func (a *Accountant) CountMessages(msgs []*schema.Message, model string) (int, error) {
	enc, err := a.forModel(model)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		total += PerMessageOverhead
		total += len(enc.Encode(m.Content, nil, nil))
		if m.Name != "" {
			total += len(enc.Encode(m.Name, nil, nil))
			total += NameAdjustment
		}
	}
	total += ReplyPrimingOverhead
	return total, nil
}

// encoding returns the cached encoding for name, loading it on first use.
func (a *Accountant) encoding(name string) (*tiktoken.Tiktoken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if enc, ok := a.encodings[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("tokens: load encoding %q: %w", name, err)
	}
	a.encodings[name] = enc
	return enc, nil
}

// forModel resolves the encoding registered for model, or the fallback.
func (a *Accountant) forModel(model string) (*tiktoken.Tiktoken, error) {
	key := "model:" + model

	a.mu.Lock()
	if enc, ok := a.encodings[key]; ok {
		a.mu.Unlock()
		return enc, nil
	}
	a.mu.Unlock()

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model names are expected; count with the generic table.
		enc, err = a.encoding(a.fallback)
		if err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	a.encodings[key] = enc
	a.mu.Unlock()
	return enc, nil
}
