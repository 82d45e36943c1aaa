package middleware

import (
	"context"
	"editor-rpc/message"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler(ctx context.Context, req *message.Request) *message.Response {
	resp, _ := message.NewResult(req.ID, "ok")
	return resp
}

func failHandler(ctx context.Context, req *message.Request) *message.Response {
	return message.NewError(req.ID, "boom")
}

func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return okHandler(ctx, req)
}

func newRequest(command string) *message.Request {
	return &message.Request{ID: "req-1", Command: command, Arguments: map[string]any{}}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	resp := LoggingMiddleware(logger)(okHandler)(context.Background(), newRequest("ping"))
	require.False(t, resp.Failed())
	assert.JSONEq(t, `"ok"`, string(resp.Result))

	resp = LoggingMiddleware(logger)(failHandler)(context.Background(), newRequest("explode"))
	require.True(t, resp.Failed())

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "command handled", entries[0].Message)
	assert.Equal(t, "ping", entries[0].ContextMap()["command"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(okHandler)

	resp := handler(context.Background(), newRequest("ping"))
	assert.False(t, resp.Failed(), resp.Error)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newRequest("slow"))
	assert.Equal(t, ErrMsgTimeout, resp.Error)
	assert.Equal(t, "req-1", resp.ID)
}

func TestTimeoutCancelsHandlerContext(t *testing.T) {
	cancelled := make(chan struct{})
	handler := TimeOutMiddleware(20 * time.Millisecond)(func(ctx context.Context, req *message.Request) *message.Response {
		<-ctx.Done()
		close(cancelled)
		return message.NewError(req.ID, ctx.Err().Error())
	})

	handler(context.Background(), newRequest("wait"))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(okHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newRequest("ping"))
		require.False(t, resp.Failed(), "request %d: %s", i, resp.Error)
	}

	resp := handler(context.Background(), newRequest("ping"))
	assert.Equal(t, ErrMsgRateLimited, resp.Error)
	assert.Equal(t, "req-1", resp.ID)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name+">")
				resp := next(ctx, req)
				order = append(order, "<"+name)
				return resp
			}
		}
	}

	handler := Chain(mark("a"), mark("b"))(okHandler)
	resp := handler(context.Background(), newRequest("ping"))

	require.False(t, resp.Failed())
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
}

func TestChainWithLoggingAndTimeout(t *testing.T) {
	chained := Chain(LoggingMiddleware(zap.NewNop()), TimeOutMiddleware(500*time.Millisecond))
	resp := chained(okHandler)(context.Background(), newRequest("ping"))
	assert.False(t, resp.Failed(), resp.Error)
}
