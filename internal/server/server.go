// Package server implements the HTTP server that exposes the query pipeline
// as a JSON API.
// The server is started by the `ciai serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ciai-go/internal/budget"
	"github.com/54b3r/ciai-go/internal/logging"
)

// Query outcomes used as metric labels.
const (
	outcomeOK       = "ok"
	outcomeTimeout  = "timeout"
	outcomeBudget   = "budget_exceeded"
	outcomeError    = "error"
	outcomeRejected = "rejected"
)

// New constructs a Server from the provided query pipeline and config.
func New(a asker, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: query pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.QueryTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		asker:   a,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", s.instrument("query",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleQuery)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	if s.cfg.APIKey == "" {
		s.log.Warn("server: CIAI_API_KEY is not set, authentication is disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. One request is one independent query
// run bounded by QueryTimeout.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reject(r.Context())
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		s.reject(r.Context())
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "task is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
	defer cancel()

	s.metrics.queryInFlight.Inc()
	defer s.metrics.queryInFlight.Dec()
	start := time.Now()

	res, err := s.asker.Ask(ctx, req.Task)

	outcome, status := classify(ctx, err)
	recordOutcome(r.Context(), outcome)
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("query failed", slog.String("outcome", outcome), slog.Any("error", err))
		writeJSON(w, log, status, errorResponse{Error: err.Error()})
		return
	}

	s.metrics.queryContexts.Observe(float64(res.Packed.Included))
	yamlBlocks := res.YAML
	if yamlBlocks == nil {
		yamlBlocks = []string{}
	}
	writeJSON(w, log, http.StatusOK, queryResponse{
		Answer:       res.Answer,
		YAML:         yamlBlocks,
		Contexts:     res.Packed.Included,
		Matches:      res.Matches,
		PromptTokens: res.PromptTokens,
	})
}

// reject counts a query request refused before it reached the pipeline.
func (s *Server) reject(ctx context.Context) {
	recordOutcome(ctx, outcomeRejected)
	s.metrics.queryRequestsTotal.WithLabelValues(outcomeRejected).Inc()
}

// classify maps a query error to its metric outcome and HTTP status.
func classify(ctx context.Context, err error) (string, int) {
	switch {
	case err == nil:
		return outcomeOK, http.StatusOK
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return outcomeTimeout, http.StatusGatewayTimeout
	case errors.Is(err, budget.ErrBudgetExceeded):
		return outcomeBudget, http.StatusUnprocessableEntity
	default:
		return outcomeError, http.StatusInternalServerError
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}
