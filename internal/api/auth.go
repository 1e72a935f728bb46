package api

import (
	"net/http"
)

// RequireCredential answers 401 while no verified API key is stored.
func RequireCredential(unlocked func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !unlocked() {
				httpError(w, http.StatusUnauthorized, "authentication_error", "no verified API key: POST /v1/credential first")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
