package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"clawdash/clock"
)

// RetryMiddleware re-issues a call up to maxRetries times when shouldRetry accepts the
// error, sleeping baseDelay, 2*baseDelay, 4*baseDelay... between attempts. Each attempt
// is a complete new call with its own connection. The backoff waits on clk.
func RetryMiddleware(clk clock.Clock, maxRetries int, baseDelay time.Duration, shouldRetry func(error) bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (json.RawMessage, error) {
			payload, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !shouldRetry(err) {
					return payload, err
				}
				slog.DebugContext(ctx, "retrying gateway call",
					"method", req.Method, "attempt", i+1, "error", err)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-clk.After(baseDelay * time.Duration(1<<i)):
				}
				payload, err = next(ctx, req)
			}
			return payload, err
		}
	}
}
