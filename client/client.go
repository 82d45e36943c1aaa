// Package client invokes commands on an editor-rpc server.
//
// A Client owns one logical connection at a time and multiplexes any number of
// concurrent requests over it. Each request gets a unique id; a receive loop
// routes every response to the caller waiting on that id, in whatever order the
// responses arrive.
//
//	c := client.New(dialer, client.DefaultConfig())
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close()
//	pong, err := c.Send(ctx, "ping", nil)
//
// When the connection drops unexpectedly every pending request is rejected with
// ErrConnectionClosed and the client reconnects in the background, waiting
// ReconnectDelay between attempts and giving up after MaxReconnectAttempts.
package client

import (
	"context"
	"editor-rpc/codec"
	"editor-rpc/message"
	"editor-rpc/transport"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration

	// ReconnectDelay is the fixed wait before each reconnection attempt.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts is how many reconnection attempts follow an
	// unexpected close before the client gives up. Zero disables reconnection.
	MaxReconnectAttempts int

	// DialTimeout bounds each reconnection dial.
	DialTimeout time.Duration

	Logger *zap.Logger

	// Callbacks run one at a time, in order, on a goroutine the client does
	// not wait for, so a callback may call Close.

	// OnDisconnect is called after an unexpected close, once pending requests
	// have been rejected.
	OnDisconnect func(err error)

	// OnReconnect is called after a successful reconnection.
	OnReconnect func()

	// OnReconnectFailed is called when the client gives up reconnecting.
	OnReconnectFailed func(err error)
}

// DefaultConfig returns the standard timings: 5s per request, 1s between
// reconnection attempts, at most 5 attempts.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:       5 * time.Second,
		ReconnectDelay:       1 * time.Second,
		MaxReconnectAttempts: 5,
		DialTimeout:          3 * time.Second,
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	dialer transport.Dialer
	log    *zap.Logger
	calls  *correlator

	mu       sync.Mutex // guards everything below; taken before calls.mu, never after
	state    State
	conn     transport.Transport
	attempts int
	closed   bool

	done chan struct{} // closed by Close, interrupts the reconnect delay
	wg   sync.WaitGroup

	evMu      sync.Mutex
	events    []func()
	notifying bool
}

// New creates a disconnected client. Call Connect before sending.
func New(dialer transport.Dialer, cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		log:    log.Named("client"),
		calls:  newCorrelator(cfg.RequestTimeout),
		state:  Disconnected,
		done:   make(chan struct{}),
	}
}

// Connect establishes the connection. A failed first attempt is returned to
// the caller, never retried in the background. Connect on a connected client
// is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.state == Connected:
		c.mu.Unlock()
		return nil
	case c.state != Disconnected:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrConnecting, st)
	}
	c.state = Connecting
	c.mu.Unlock()

	t, err := c.dialer.Dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if t != nil {
			t.Close()
		}
		return ErrClosed
	}
	if err != nil {
		c.state = Disconnected
		c.log.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	c.attach(t)
	c.log.Info("connected")
	return nil
}

// attach installs t as the live connection and starts its receive loop.
// Caller must hold c.mu.
func (c *Client) attach(t transport.Transport) {
	c.conn = t
	c.state = Connected
	c.attempts = 0
	c.wg.Add(1)
	go c.recvLoop(t)
}

// Send invokes command with args and waits for its result, the request timeout,
// a disconnect or ctx, whichever comes first. It fails immediately with
// ErrNotConnected unless the client is Connected.
func (c *Client) Send(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	id := c.calls.nextID()
	data, err := codec.Encode(&message.Request{ID: id, Command: command, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}

	// Register under c.mu: a concurrent disconnect either sees this call in
	// the pending map and fails it, or happened first and we fail fast here.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != Connected {
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w (state %s)", command, ErrNotConnected, st)
	}
	cl := c.calls.register(id, command)
	t := c.conn
	c.mu.Unlock()

	if err := t.Send(ctx, data); err != nil {
		if c.calls.cancel(id, fmt.Errorf("send %s: %w", command, err)) {
			c.log.Debug("write failed", zap.String("id", id), zap.Error(err))
		}
		r := <-cl.done
		return r.value, r.err
	}

	select {
	case r := <-cl.done:
		return r.value, r.err
	case <-ctx.Done():
		c.calls.cancel(id, ctx.Err())
		r := <-cl.done
		return r.value, r.err
	}
}

// Call is Send followed by decoding the result into reply.
func (c *Client) Call(ctx context.Context, command string, args map[string]any, reply any) error {
	raw, err := c.Send(ctx, command, args)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(raw, reply); err != nil {
		return fmt.Errorf("decode %s result: %w", command, err)
	}
	return nil
}

// recvLoop reads responses from t until it fails. One loop runs per
// connection; a replaced connection's loop exits without side effects.
func (c *Client) recvLoop(t transport.Transport) {
	defer c.wg.Done()
	for {
		data, err := t.Receive(context.Background())
		if err != nil {
			c.connectionLost(t, err)
			return
		}

		resp, err := codec.DecodeResponse(data)
		if err != nil {
			c.log.Warn("discarding malformed response", zap.Error(err))
			continue
		}
		if !c.calls.resolve(resp) {
			c.log.Debug("dropping response for unknown id", zap.String("id", resp.ID))
		}
	}
}

func (c *Client) connectionLost(t transport.Transport, cause error) {
	c.mu.Lock()
	if c.conn != t || c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil

	// Only a connection that was up can be lost, so reconnecting here never
	// retries a failed first Connect.
	failed := c.calls.failAll(ErrConnectionClosed)
	if c.cfg.MaxReconnectAttempts > 0 {
		c.state = Reconnecting
		c.wg.Add(1)
		go c.reconnectLoop()
	} else {
		c.state = Disconnected
	}
	st := c.state
	c.mu.Unlock()

	t.Close()
	if errors.Is(cause, io.EOF) || errors.Is(cause, transport.ErrTransportClosed) {
		cause = ErrConnectionClosed
	}
	c.log.Warn("connection lost",
		zap.Error(cause),
		zap.Int("failedRequests", failed),
		zap.Stringer("state", st))
	if fn := c.cfg.OnDisconnect; fn != nil {
		c.notify(func() { fn(cause) })
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	timer := time.NewTimer(c.cfg.ReconnectDelay)
	defer timer.Stop()

	var lastErr error
	for {
		c.mu.Lock()
		if c.closed || c.state != Reconnecting {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		if attempt > c.cfg.MaxReconnectAttempts {
			c.state = Disconnected
			c.attempts = 0
			c.mu.Unlock()

			err := fmt.Errorf("gave up after %d reconnection attempts: %w", c.cfg.MaxReconnectAttempts, lastErr)
			c.log.Error("reconnection failed", zap.Error(err))
			if fn := c.cfg.OnReconnectFailed; fn != nil {
				c.notify(func() { fn(err) })
			}
			return
		}
		c.mu.Unlock()

		timer.Reset(c.cfg.ReconnectDelay)
		select {
		case <-timer.C:
		case <-c.done:
			return
		}

		ctx, cancel := c.dialContext()
		t, err := c.dialer.Dial(ctx)
		cancel()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			if t != nil {
				t.Close()
			}
			return
		}
		if err != nil {
			c.mu.Unlock()
			lastErr = err
			c.log.Warn("reconnection attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", c.cfg.MaxReconnectAttempts),
				zap.Error(err))
			continue
		}
		c.attach(t)
		c.mu.Unlock()

		c.log.Info("reconnected", zap.Int("attempt", attempt))
		if fn := c.cfg.OnReconnect; fn != nil {
			c.notify(fn)
		}
		return
	}
}

// notify queues a lifecycle callback. The queue is drained by a goroutine
// outside wg: Close waits on wg, and callbacks are allowed to call Close.
func (c *Client) notify(fn func()) {
	c.evMu.Lock()
	c.events = append(c.events, fn)
	if c.notifying {
		c.evMu.Unlock()
		return
	}
	c.notifying = true
	c.evMu.Unlock()

	go func() {
		for {
			c.evMu.Lock()
			if len(c.events) == 0 {
				c.notifying = false
				c.evMu.Unlock()
				return
			}
			next := c.events[0]
			c.events = c.events[1:]
			c.evMu.Unlock()
			next()
		}
	}()
}

func (c *Client) dialContext() (context.Context, context.CancelFunc) {
	if c.cfg.DialTimeout > 0 {
		return context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	}
	return context.WithCancel(context.Background())
}

// Close disconnects without reconnecting and rejects pending requests.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	t := c.conn
	c.conn = nil
	c.state = Disconnected
	failed := c.calls.failAll(fmt.Errorf("%w: %w", ErrConnectionClosed, ErrClosed))
	c.mu.Unlock()

	var err error
	if t != nil {
		err = t.Close()
	}
	c.wg.Wait()
	c.log.Info("closed", zap.Int("failedRequests", failed))
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of in-flight requests.
func (c *Client) Pending() int {
	return c.calls.len()
}
