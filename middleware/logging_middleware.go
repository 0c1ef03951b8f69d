package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// LoggingMiddleware logs every call with its duration; failures are logged at warn.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (json.RawMessage, error) {
			start := time.Now()
			payload, err := next(ctx, req)
			duration := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "gateway call failed",
					"method", req.Method, "duration", duration, "error", err)
				return payload, err
			}
			logger.DebugContext(ctx, "gateway call",
				"method", req.Method, "duration", duration, "bytes", len(payload))
			return payload, nil
		}
	}
}
