package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/M-Creative-ltd/TanteBeauty/internal/auth"
	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by requestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware assigns each request a UUID. An incoming id is kept
// only when it parses as a UUID so clients cannot inject log content.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		} else {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// diagnosticMiddleware attaches an auth.Diagnostic so outer middleware
// can see what the gate and login handler decided.
func diagnosticMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.DiagnosticFrom(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx, _ := auth.WithDiagnostic(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isAssetPath reports paths logged at a lower level.
func isAssetPath(path string) bool {
	return path == "/robots.txt" || path == "/sitemap.xml" || path == "/favicon.ico" ||
		strings.HasPrefix(path, "/static/") || strings.HasSuffix(path, ".js")
}

// loggingMiddleware logs each request with its outcome.
func loggingMiddleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			logger := logging.WithRequest(logging.Web(), RequestIDFromContext(r.Context()))
			level := slog.LevelInfo
			if isAssetPath(r.URL.Path) {
				level = slog.LevelDebug
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status(),
				"bytes", rec.bytes,
				"duration", time.Since(start),
				"client_ip", clientIP(r),
			}
			if diag := auth.DiagnosticFrom(r.Context()); diag != nil && diag.Username != "" {
				attrs = append(attrs, "user", diag.Username)
			}
			logger.Log(r.Context(), level, "HTTP request", attrs...)
		})
	}
}
