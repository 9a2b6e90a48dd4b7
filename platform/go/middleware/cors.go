// Package middleware holds HTTP middleware shared by the API server.
package middleware

import "net/http"

// CORS allows the given origin on the API routes and answers preflights.
// The surface is GET/POST only; deployments and rollbacks are POSTs.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DefaultCORS is the permissive development default.
func DefaultCORS() func(http.Handler) http.Handler {
	return CORS("*")
}
