package rest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type contextKey string

const (
	callerIDKey   contextKey = "caller_id"
	callerNameKey contextKey = "caller_name"

	// UserIDHeader carries the authenticated player id set by the auth proxy.
	UserIDHeader = "X-User-ID"
	// UserNameHeader optionally carries the player's display name.
	UserNameHeader = "X-User-Name"
)

// RecoveryMiddleware converts panics into 500 responses
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[rest] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				respondError(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("%v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs method, path, status and duration of every request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[rest] %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

// CORSMiddleware allows browser requests from the configured origins.
// Requests without an Origin header pass through untouched.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if !allowed[origin] && !allowed["*"] {
					log.Printf("[rest] origin %q not in allowed list", origin)
					respondError(w, http.StatusForbidden, "Origin not allowed", nil)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "Authorization", UserIDHeader, UserNameHeader}, ", "))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IdentityMiddleware copies the caller identity headers into the request
// context. Handlers that need a caller use requireCaller.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			ctx = context.WithValue(ctx, callerIDKey, id)
			ctx = context.WithValue(ctx, callerNameKey, strings.TrimSpace(r.Header.Get(UserNameHeader)))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the caller id and display name, if present
func CallerFromContext(ctx context.Context) (id, name string, ok bool) {
	id, ok = ctx.Value(callerIDKey).(string)
	name, _ = ctx.Value(callerNameKey).(string)
	return id, name, ok
}

// requireCaller writes a 401 and returns false when the request carries no identity
func requireCaller(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id, name, ok := CallerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing "+UserIDHeader+" header", nil)
		return "", "", false
	}
	return id, name, true
}
