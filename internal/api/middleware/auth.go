package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/edvin/devhost/internal/api/response"
)

// Auth returns a middleware that requires the X-API-Key header to match
// token. WebSocket clients cannot set headers and pass ?token= instead. An
// empty token disables the check.
func Auth(token string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			got := sha256.Sum256([]byte(key))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("token")
}
