package middleware

import (
	"encoding/json"
	"net/http"
	"path"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth guards mutating operational routes with a bcrypt-hashed API
// key. Routes are given as "METHOD /path" so a protected DELETE does not
// gate an open POST on the same path. An empty hash disables the check
// entirely, which is the stock configuration for the anonymous-first
// mobile app.
func APIKeyAuth(apiKeyHash, headerName string, protectedRoutes []string) func(http.Handler) http.Handler {
	protected := make(map[string]bool, len(protectedRoutes))
	for _, p := range protectedRoutes {
		protected[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The router treats /api/scans/ and /api/scans as the same
			// resource, so the lookup must too
			requestPath := path.Clean(r.URL.Path)

			if apiKeyHash == "" || !protected[r.Method+" "+requestPath] {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "API key is required."})
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(providedKey)); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Invalid API key."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
