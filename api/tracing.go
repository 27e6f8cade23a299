package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"appserver/metrics"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// requestLoggerMiddleware logs one concise line per request, in the style of
// a development access log: "GET /api/things 200 1.234 ms - 56".
// It also assigns the request ID and records request metrics.
func (a *App) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := sanitizeRequestID(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithRequestID(r.Context(), requestID)
		ctx = WithTraceStart(ctx, start)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

		line := fmt.Sprintf("%s %s %d %.3f ms - %s",
			r.Method, r.URL.RequestURI(), status,
			float64(duration.Microseconds())/1000, contentLength(ww))
		fields := []interface{}{"request_id", requestID}

		// Error level belongs to the error handler, which logs the cause
		if status >= http.StatusBadRequest {
			a.logger.Warnw(line, fields...)
		} else {
			a.logger.Infow(line, fields...)
		}
	})
}

// contentLength prefers the declared Content-Length over the counted bytes
func contentLength(ww middleware.WrapResponseWriter) string {
	if cl := ww.Header().Get("Content-Length"); cl != "" {
		return cl
	}
	if n := ww.BytesWritten(); n > 0 {
		return strconv.Itoa(n)
	}
	return "-"
}

// sanitizeRequestID cleans request ID to prevent log injection.
// Only allows alphanumeric characters, dashes, and underscores.
// Truncates to maximum 64 characters to prevent memory issues.
func sanitizeRequestID(id string) string {
	const maxLen = 64

	if id == "" {
		return ""
	}

	// Truncate if too long
	if len(id) > maxLen {
		id = id[:maxLen]
	}

	// Filter to safe characters only
	result := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') ||
			c == '-' || c == '_' {
			result = append(result, c)
		}
	}

	return string(result)
}
