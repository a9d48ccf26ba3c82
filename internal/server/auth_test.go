package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// okHandler stands in for handleQuery behind the middleware under test.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		apiKey        string
		header        string
		wantStatus    int
		wantChallenge string
	}{
		{"no key configured", "", "", http.StatusOK, ""},
		{"no key ignores header", "", "Bearer anything", http.StatusOK, ""},
		{"missing header", "ci-secret", "", http.StatusUnauthorized, `Bearer realm="ciai"`},
		{"wrong token", "ci-secret", "Bearer nope", http.StatusUnauthorized, `Bearer realm="ciai" error="invalid_token"`},
		{"prefix of key", "ci-secret", "Bearer ci-", http.StatusUnauthorized, `Bearer realm="ciai" error="invalid_token"`},
		{"basic scheme", "ci-secret", "Basic Y2k6c2VjcmV0", http.StatusUnauthorized, `Bearer realm="ciai"`},
		{"correct token", "ci-secret", "Bearer ci-secret", http.StatusOK, ""},
		{"lowercase scheme", "ci-secret", "bearer ci-secret", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"task":"run go test"}`))
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != tc.wantChallenge {
				t.Errorf("WWW-Authenticate = %q, want %q", got, tc.wantChallenge)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
