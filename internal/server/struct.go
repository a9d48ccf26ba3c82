package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ciai-go/internal/query"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed QueryTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds one POST /api/query run (default: 2m).
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on POST /api/query.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface handleQuery calls to answer a task.
// *query.Pipeline satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, task string) (*query.Result, error)
}

// Server is the HTTP server that exposes the query pipeline.
type Server struct {
	// asker answers POST /api/query.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Task is the natural-language description of the pipeline to write.
	Task string `json:"task"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the model's full reply.
	Answer string `json:"answer"`
	// YAML holds the fenced YAML blocks found in Answer.
	YAML []string `json:"yaml"`
	// Contexts is the number of documentation blocks packed into the prompt.
	Contexts int `json:"contexts"`
	// Matches is the number of candidates the store returned.
	Matches int `json:"matches"`
	// PromptTokens is the counted size of the request sent to the model.
	PromptTokens int `json:"promptTokens"`
}

// errorResponse is the JSON body written for every non-2xx query outcome.
type errorResponse struct {
	Error string `json:"error"`
}
