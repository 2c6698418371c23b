package app

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestIDFromContext returns the request ID set by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID assigns each request a UUID, exposed on the response header and
// the request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequireDatabase gates requests on database health. An unhealthy database
// rejects the request with 503 and a Retry-After hint, since nothing useful
// can happen without it.
func (a *App) RequireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := a.PerformHealthChecks(r.Context())
		if !snap.Database {
			w.Header().Set("Retry-After", "5")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "database unavailable, please retry",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithCache annotates requests with cache health but never blocks them:
// the cache is best-effort, so a degraded cache only logs and marks the
// response.
func (a *App) WithCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := a.PerformHealthChecks(r.Context())
		if !snap.Redis {
			a.log.Warn("cache unhealthy, serving without it",
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()))
			w.Header().Set("X-Cache-Degraded", "true")
		}
		next.ServeHTTP(w, r)
	})
}
