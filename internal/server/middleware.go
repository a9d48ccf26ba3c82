package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/ciai-go/internal/logging"
)

// requestState is the per-request record shared between requestLogger and
// the handlers below it. Handlers report what happened to the query; the
// logger writes it on the access line.
type requestState struct {
	outcome string
}

type requestStateKey struct{}

// recordOutcome stores the query outcome for the access log. It is a no-op
// outside requestLogger, so handlers can be tested directly.
func recordOutcome(ctx context.Context, outcome string) {
	if st, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		st.outcome = outcome
	}
}

// requestLogger tags each request with a request_id logger in the context
// and writes one access line when it completes. For POST /api/query the line
// also carries the outcome (ok, timeout, budget_exceeded, error, rejected).
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := base.With(
			slog.String("request_id", newRequestID()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		st := &requestState{}
		ctx := context.WithValue(logging.WithLogger(r.Context(), log), requestStateKey{}, st)
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		attrs := []any{
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)),
		}
		if st.outcome != "" {
			attrs = append(attrs, slog.String("outcome", st.outcome))
		}
		log.Info("request", attrs...)
	})
}

// responseWriter records the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code before delegating to the underlying writer.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// newRequestID returns 8 random bytes, hex encoded.
func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
