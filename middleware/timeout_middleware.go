package middleware

import (
	"context"
	"editor-rpc/message"
	"time"
)

const ErrMsgTimeout = "request timed out"

// TimeOutMiddleware answers with ErrMsgTimeout when the handler runs past
// timeout. The handler keeps running in the background with a cancelled ctx;
// its late result is discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewError(req.ID, ErrMsgTimeout)
			}
		}
	}
}
