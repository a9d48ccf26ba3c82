package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/ciai-go/internal/logging"
	"github.com/54b3r/ciai-go/internal/provider"
	"github.com/54b3r/ciai-go/internal/server"
)

// NewServeCmd constructs the `ciai serve` command, which exposes the query
// pipeline over HTTP.
func NewServeCmd() *cobra.Command {
	var (
		host         string
		port         int
		queryTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ciai HTTP API",
		Long: `Start an HTTP server answering POST /api/query with {"task": "..."}.

Endpoints:
  POST /api/query   run one query (Bearer auth when CIAI_API_KEY is set)
  GET  /api/health  liveness
  GET  /api/ready   vector store and model backend checks
  GET  /metrics     Prometheus metrics

Examples:
  ciai serve
  ciai serve --port 9090 --query-timeout 90s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			deps, err := buildQueryPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer deps.close()

			pingers := []server.Pinger{server.NewIndexPinger(deps.store, deps.storeCfg)}
			if p := server.NewLLMPinger(provider.NewHealthChecker(deps.providerCfg), string(deps.providerCfg.Backend)); p != nil {
				pingers = append(pingers, p)
			}

			srv, err := server.New(deps.pipeline, &server.Config{
				Host:         host,
				Port:         port,
				QueryTimeout: queryTimeout,
				Logger:       log,
				Pingers:      pingers,
				APIKey:       os.Getenv("CIAI_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().DurationVar(&queryTimeout, "query-timeout", 2*time.Minute, "Upper bound for one query run")

	return cmd
}
