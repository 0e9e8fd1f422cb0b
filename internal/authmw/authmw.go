// Package authmw guards the incident API with a static bearer token.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const bearerPrefix = "Bearer "

// Require returns middleware that rejects requests whose Authorization header
// does not carry token as a bearer credential. An empty token disables the
// check and the middleware passes every request through.
func Require(token string, logger log.Logger) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = log.Nop()
	}

	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				deny(w, "missing or malformed authorization header")
				return
			}

			// constant time so response latency doesn't leak the token
			if subtle.ConstantTimeCompare([]byte(auth[len(bearerPrefix):]), expected) != 1 {
				logger.Warn(r.Context(), "rejected api request with invalid token",
					"method", r.Method,
					"path", r.URL.Path,
				)
				deny(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
