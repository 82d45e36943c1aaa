package middleware

import (
	"context"
	"editor-rpc/message"
	"time"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("id", req.ID),
				zap.String("command", req.Command),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Failed() {
				logger.Warn("command failed", append(fields, zap.String("error", resp.Error))...)
			} else {
				logger.Debug("command handled", fields...)
			}
			return resp
		}
	}
}
