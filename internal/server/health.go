package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/ciai-go/internal/logging"
)

// checkTimeout bounds each dependency check of GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is a dependency GET /api/ready checks: the vector store or the
// chat backend. Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in the readiness body (e.g. "qdrant").
	Name() string
}

// indexChecker is implemented by pingers that front the vector index. Their
// readiness check also reports the index name and vector count.
type indexChecker interface {
	Pinger
	CheckIndex(ctx context.Context) (indexStatus, error)
}

// indexStatus describes the index queries are answered from.
type indexStatus struct {
	Name    string  `json:"name"`
	Vectors *uint64 `json:"vectors,omitempty"`
}

// readyCheck is the result of one dependency check.
type readyCheck struct {
	Name  string       `json:"name"`
	OK    bool         `json:"ok"`
	Error string       `json:"error,omitempty"`
	Index *indexStatus `json:"index,omitempty"`
	// Warning flags a reachable but degraded dependency, such as an empty
	// index. It does not fail readiness.
	Warning string `json:"warning,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// emptyIndexWarning is reported when the index holds no vectors: queries
// still run but every prompt goes out without documentation context.
const emptyIndexWarning = "index is empty; run ciai index <docs-path>"

// handleReady handles GET /api/ready. It answers 200 when every check
// succeeds and 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: []readyCheck{}}
	for _, p := range s.pingers {
		check := runCheck(r.Context(), p)
		if !check.OK {
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", check.Name),
				slog.String("error", check.Error),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

// runCheck runs one pinger under checkTimeout.
func runCheck(ctx context.Context, p Pinger) readyCheck {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	check := readyCheck{Name: p.Name()}
	var err error
	if ip, ok := p.(indexChecker); ok {
		var st indexStatus
		st, err = ip.CheckIndex(ctx)
		check.Index = &st
		if err == nil && st.Vectors != nil && *st.Vectors == 0 {
			check.Warning = emptyIndexWarning
		}
	} else {
		err = p.Ping(ctx)
	}

	check.OK = err == nil
	if err != nil {
		check.Error = err.Error()
	}
	return check
}
