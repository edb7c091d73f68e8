// Package middleware provides HTTP middleware for request tracing,
// structured logging, auth, and Prometheus metrics collection.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BRO3886/go-formpdf/internal/metrics"
)

// contextKey is an unexported type for context keys in this package.
type contextKey struct{}

// requestState holds per-request observability state set on the context.
type requestState struct {
	id       string
	logError string
	outcome  string
}

// RequestIDFromContext returns the request ID stored by RequestID middleware,
// or "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(contextKey{}).(*requestState); ok && s != nil {
		return s.id
	}
	return ""
}

// SetOutcome records the render outcome ("success", "timeout", "failed")
// on the context. It is a no-op when no state is present (e.g., in tests
// that do not use the middleware).
func SetOutcome(ctx context.Context, outcome string) {
	if s, ok := ctx.Value(contextKey{}).(*requestState); ok && s != nil {
		s.outcome = outcome
	}
}

// SetLogError records a human-readable error reason that the Logging
// middleware will include as an "error" field in the access log line. It is
// a no-op when no state is present.
func SetLogError(ctx context.Context, reason string) {
	if s, ok := ctx.Value(contextKey{}).(*requestState); ok && s != nil {
		s.logError = reason
	}
}

// RequestID is middleware that ensures every request carries an
// X-Request-ID header. If the incoming request already has one it is
// reused; otherwise a new UUIDv4 is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		state := &requestState{id: id}
		ctx := context.WithValue(r.Context(), contextKey{}, state)
		w.Header().Set("X-Request-ID", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseRecorder wraps http.ResponseWriter to capture the status code.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

// Logging is middleware that emits one access log line after each request
// completes, including request ID, method, path, status, duration, and any
// error set via SetLogError.
func Logging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if s, ok := r.Context().Value(contextKey{}).(*requestState); ok && s != nil && s.logError != "" {
			fields = append(fields, zap.String("error", s.logError))
		}
		log.Info("request", fields...)
	})
}

// Auth is middleware that enforces a bearer token when token is non-empty.
// With an empty token it passes every request through unchanged.
func Auth(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	expect := "Bearer " + token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expect)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Metrics is middleware that records render metrics (in-flight gauge,
// outcome counters, and duration histogram) for each request.
// It should only wrap /render, not /health or /metrics.
func Metrics(reg *metrics.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.IncInFlight()
		start := time.Now()

		next.ServeHTTP(w, r)

		reg.DecInFlight()
		reg.ObserveDuration(time.Since(start).Seconds())

		outcome := "failed"
		if s, ok := r.Context().Value(contextKey{}).(*requestState); ok && s != nil && s.outcome != "" {
			outcome = s.outcome
		}
		switch outcome {
		case "success":
			reg.IncSuccess()
		case "timeout":
			reg.IncTimeout()
		default:
			reg.IncFailed()
		}
	})
}
