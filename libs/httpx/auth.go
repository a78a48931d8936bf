package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WithBearerAuth rejects requests that do not carry the configured static
// bearer token. Health endpoints are left open for probes.
func WithBearerAuth(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			authorization := r.Header.Get("Authorization")
			if authorization == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authorization)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
