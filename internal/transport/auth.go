package transport

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

// AdminMiddleware admits requests that carry admin=true and, when secret is set, the
// secret as key=<secret> or a bearer token.
func AdminMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("admin") != "true" {
				WriteError(w, http.StatusForbidden, CodeForbidden, "admin mode required")
				return
			}

			if secret != "" {
				key := q.Get("key")
				if key == "" {
					auth := r.Header.Get("Authorization")
					key = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
				}
				if key == "" {
					WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "missing admin key")
					return
				}
				if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
					WriteError(w, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized.Error())
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
