package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/ciai-go/internal/logging"
)

// authRealm is the realm advertised in WWW-Authenticate challenges.
const authRealm = "ciai"

// authMiddleware guards POST /api/query with the static Bearer token taken
// from CIAI_API_KEY (or server.api_key in the YAML config). An empty apiKey
// disables the check; Server.Start warns about that once at startup.
//
// Clients send:
//
//	Authorization: Bearer $CIAI_API_KEY
//
// A missing or wrong token gets 401 with a Bearer challenge and the request
// is logged with outcome "rejected". The presented token is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" && subtle.ConstantTimeCompare([]byte(token), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		challenge := `Bearer realm="` + authRealm + `"`
		msg := "authorization required"
		if token != "" {
			challenge += ` error="invalid_token"`
			msg = "invalid token"
		}
		logging.FromContext(r.Context()).Warn("auth: query request rejected",
			slog.String("reason", msg),
			slog.Bool("token_present", token != ""),
		)
		recordOutcome(r.Context(), outcomeRejected)
		w.Header().Set("WWW-Authenticate", challenge)
		http.Error(w, msg, http.StatusUnauthorized)
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header
// (scheme matched case-insensitively), or "" when absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
