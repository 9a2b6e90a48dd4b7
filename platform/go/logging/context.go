package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type loggerKey struct{}

// WithLogger stores a request-scoped logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromRequest returns the request-scoped logger, or the fallback when the
// request did not pass through RequestLogger.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// RequestLogger tags the base logger with the chi request id and the route,
// makes it available to handlers via FromRequest, and logs one completion
// line per request. Deployment requests run for minutes, so the completion
// line carries the duration.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				logger = logger.With(zap.String("request_id", reqID))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(WithLogger(r.Context(), logger)))

			logger.Info("request completed",
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
