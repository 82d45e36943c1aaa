package middleware

import (
	"context"
	"editor-rpc/message"

	"golang.org/x/time/rate"
)

const ErrMsgRateLimited = "rate limit exceeded"

// RateLimitMiddleware creates a token bucket limiter shared by every command
// and connection of the server. Requests over the limit are rejected, not queued.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return message.NewError(req.ID, ErrMsgRateLimited)
			}
			return next(ctx, req)
		}
	}
}
