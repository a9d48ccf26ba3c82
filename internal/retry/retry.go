// Package retry decorates the pipeline collaborators (embedder, vector store,
// completer) with bounded exponential backoff. The default policy makes a
// single attempt, which leaves every failure fatal on first occurrence;
// raising MaxAttempts opts a deployment into retries without touching the
// pipelines themselves.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ciai-go/internal/budget"
	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/rag"
)

// Policy bounds retries.
type Policy struct {
	// MaxAttempts is the total number of tries, the first included.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt (default 500ms).
	InitialInterval time.Duration

	// MaxInterval caps any single wait (default 10s).
	MaxInterval time.Duration
}

// NoRetry is the default policy: one attempt.
var NoRetry = Policy{MaxAttempts: 1}

// PolicyFromEnv reads CIAI_RETRY_MAX_ATTEMPTS and CIAI_RETRY_INITIAL_INTERVAL
// (a Go duration). Unset or invalid values leave NoRetry in place.
func PolicyFromEnv() Policy {
	p := NoRetry
	if v, err := strconv.Atoi(os.Getenv("CIAI_RETRY_MAX_ATTEMPTS")); err == nil && v > 0 {
		p.MaxAttempts = v
	}
	if d, err := time.ParseDuration(os.Getenv("CIAI_RETRY_INITIAL_INTERVAL")); err == nil && d > 0 {
		p.InitialInterval = d
	}
	return p
}

func (p Policy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxInterval = 10 * time.Second
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.attempts()-1)), ctx)
}

// Do runs op under p. Errors marked with backoff.Permanent, context
// cancellation, and budget.ErrBudgetExceeded are never retried.
func Do[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	log := logging.FromContext(ctx)
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return v, backoff.Permanent(err)
		}
		if attempt < p.attempts() {
			log.Warn("retry: attempt failed",
				slog.String("op", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return v, err
	}
	return backoff.RetryWithData(wrapped, p.backOff(ctx))
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, budget.ErrBudgetExceeded):
		return false
	}
	return true
}

// Embedder retries a rag.Embedder.
type Embedder struct {
	Next   rag.Embedder
	Policy Policy
}

// Embed implements rag.Embedder.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return Do(ctx, e.Policy, "embed", func() ([][]float32, error) {
		return e.Next.Embed(ctx, texts)
	})
}

// Store retries every rag.VectorStore call except Close.
type Store struct {
	Next   rag.VectorStore
	Policy Policy
}

// Upsert implements rag.VectorStore. Upserts overwrite by id, so repeating
// a partially applied batch is safe.
func (s *Store) Upsert(ctx context.Context, records []rag.Record) error {
	_, err := Do(ctx, s.Policy, "upsert", func() (struct{}, error) {
		return struct{}{}, s.Next.Upsert(ctx, records)
	})
	return err
}

// Query implements rag.VectorStore.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Match, error) {
	return Do(ctx, s.Policy, "query", func() ([]rag.Match, error) {
		return s.Next.Query(ctx, vector, topK)
	})
}

// Stats implements rag.VectorStore.
func (s *Store) Stats(ctx context.Context) (rag.Stats, error) {
	return Do(ctx, s.Policy, "stats", func() (rag.Stats, error) {
		return s.Next.Stats(ctx)
	})
}

// DeleteIndex implements rag.VectorStore.
func (s *Store) DeleteIndex(ctx context.Context) error {
	_, err := Do(ctx, s.Policy, "delete_index", func() (struct{}, error) {
		return struct{}{}, s.Next.DeleteIndex(ctx)
	})
	return err
}

// Close implements rag.VectorStore.
func (s *Store) Close() error { return s.Next.Close() }

type completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Completer retries a chat completion call.
type Completer struct {
	Next   completer
	Policy Policy
}

// Complete returns the answer of the first successful attempt.
func (c *Completer) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	return Do(ctx, c.Policy, "complete", func() (string, error) {
		return c.Next.Complete(ctx, msgs)
	})
}
