package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode    int
	size          int
	headerWritten bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.headerWritten {
		r.statusCode = statusCode
		r.ResponseWriter.WriteHeader(statusCode)
		r.headerWritten = true
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// AccessLog logs one line per request with its status, size and latency.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"bytes", rec.size,
				"elapsed_ms", time.Since(start).Milliseconds(),
			}
			if caller, ok := auth.GetCallerFromContext(r.Context()); ok {
				attrs = append(attrs, "caller", caller.CallerID)
			}
			if id := rec.Header().Get("X-Request-ID"); id != "" {
				attrs = append(attrs, "request_id", id)
			}

			switch {
			case rec.statusCode >= 500:
				logger.Error("request", attrs...)
			case rec.statusCode >= 400:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
		})
	}
}
