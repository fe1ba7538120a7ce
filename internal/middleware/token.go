// Package middleware provides HTTP middleware for the webhook server.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RequireToken rejects requests whose {token} URL parameter does not match
// token. Mismatches are served by reject, which should look exactly like the
// router's not-found response so the endpoint is not discoverable. A nil
// reject falls back to http.NotFound.
//
// It must be installed inline on the route (r.With) so the URL parameters
// are already resolved.
func RequireToken(token string, reject http.Handler) func(http.Handler) http.Handler {
	expected := []byte(token)
	if reject == nil {
		reject = http.HandlerFunc(http.NotFound)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(chi.URLParam(r, "token"))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				reject.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
