package client

import (
	"context"
	"editor-rpc/codec"
	"editor-rpc/message"
	"editor-rpc/transport"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport. Whatever the client sends shows up on
// sent; whatever the test pushes with deliver comes out of Receive.
type fakeConn struct {
	in     chan []byte
	sent   chan []byte
	writes atomic.Int32

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		sent:   make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return transport.ErrTransportClosed
	default:
	}
	f.writes.Add(1)
	f.sent <- append([]byte(nil), data...)
	return nil
}

func (f *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// readRequest waits for the next request the client wrote.
func (f *fakeConn) readRequest(t *testing.T) *message.Request {
	t.Helper()
	select {
	case data := <-f.sent:
		req, err := codec.DecodeRequest(data)
		require.NoError(t, err)
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request written")
		return nil
	}
}

func (f *fakeConn) deliver(t *testing.T, resp *message.Response) {
	t.Helper()
	data, err := codec.Encode(resp)
	require.NoError(t, err)
	f.in <- data
}

func (f *fakeConn) reply(t *testing.T, id string, v any) {
	t.Helper()
	resp, err := message.NewResult(id, v)
	require.NoError(t, err)
	f.deliver(t, resp)
}

var errDial = errors.New("connection refused")

// fakeDialer hands out a fresh fakeConn per successful dial, publishing each
// on conns. The next `failures` dials fail.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	times    []time.Time

	dials atomic.Int32
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) failNext(n int) {
	d.mu.Lock()
	d.failures = n
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context) (transport.Transport, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.times = append(d.times, time.Now())
	if d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, errDial
	}
	d.mu.Unlock()

	c := newFakeConn()
	d.conns <- c
	return c, nil
}

// dialTimes returns when each dial happened, oldest first.
func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}
