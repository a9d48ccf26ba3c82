package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/ciai-go/internal/logging"
)

// Per-client defaults for POST /api/query when Config.RateLimit and
// Config.RateBurst are zero. A query run holds an embedding call and a chat
// completion, so a client rarely needs more.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle clients are forgotten after clientTTL; the sweep runs every sweepEvery.
const (
	clientTTL  = 5 * time.Minute
	sweepEvery = time.Minute
)

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles POST /api/query per client IP with a token bucket,
// so one caller cannot monopolise the embedding and chat backends.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter starts the idle-client sweep. The returned func stops it;
// Server.Start calls it on shutdown.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				rl.sweep(now)
			}
		}
	}()

	return rl, func() { close(stop) }
}

func (rl *rateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// sweep drops clients idle for longer than clientTTL as of now.
func (rl *rateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	dropped := 0
	for ip, b := range rl.clients {
		if now.Sub(b.lastSeen) > clientTTL {
			delete(rl.clients, ip)
			dropped++
		}
	}
	if dropped > 0 {
		rl.log.Debug("rate limit: forgot idle clients", slog.Int("count", dropped))
	}
	return dropped
}

// middleware answers 429 with Retry-After when the client's bucket is empty.
// The request is logged with outcome "rejected" and never reaches the query
// pipeline.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.limiter(ip).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit: query request rejected",
			slog.String("ip", ip),
		)
		recordOutcome(r.Context(), outcomeRejected)
		w.Header().Set("Retry-After", "1")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})
}

// clientIP is the host part of RemoteAddr. X-Forwarded-For is not trusted;
// ciai serve binds to localhost by default.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
