package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// TimeoutMiddleware caps the budget of every call at timeout. Calls that ask for less
// keep their own budget, and a zero budget passes through so the client default
// applies.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (json.RawMessage, error) {
			if req.Timeout > timeout {
				capped := *req
				capped.Timeout = timeout
				req = &capped
			}
			return next(ctx, req)
		}
	}
}
