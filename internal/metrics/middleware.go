package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // default when WriteHeader is not called
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// normalizePath collapses dynamic URL segments into placeholders to keep
// metric label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case path == "/api/healthz":
		return "/api/healthz"
	case path == "/metrics":
		return "/metrics"
	case path == "/api/storage/chunk-upload/initiate":
		return "/api/storage/chunk-upload/initiate"
	case path == "/api/storage/chunk-upload":
		return "/api/storage/chunk-upload"

	case strings.HasPrefix(path, "/api/storage/chunk-upload/status/"):
		return "/api/storage/chunk-upload/status/:id"
	case strings.HasPrefix(path, "/api/storage/chunk-upload/cancel/"):
		return "/api/storage/chunk-upload/cancel/:id"
	case strings.HasPrefix(path, "/api/video-progress/"):
		return "/api/video-progress/:id"
	case strings.HasPrefix(path, "/api/lessons/"):
		return "/api/lessons/:id/complete"
	case strings.HasPrefix(path, "/api/videos/"):
		return "/api/videos/:id/manifest"
	}

	return "other"
}
