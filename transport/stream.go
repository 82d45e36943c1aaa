package transport

import (
	"context"
	"editor-rpc/protocol"
	"errors"
	"net"
	"sync"
	"time"
)

// StreamTransport carries newline framed messages over a net.Conn
// (Unix domain socket or TCP).
//
//	goroutine-1 ──Send──┐
//	goroutine-2 ──Send──┼──→ sending mutex ──→ conn ──→ peer
//	goroutine-3 ──Send──┘
//
//	reader: conn ──→ LineBuffer ──→ queue ──→ Receive
type StreamTransport struct {
	conn         net.Conn
	sending      sync.Mutex // whole lines only: two writers must never interleave
	writeTimeout time.Duration

	lines   *protocol.LineBuffer // private receive buffer, touched only by the reader
	queue   [][]byte             // complete lines not yet returned by Receive
	readBuf []byte
	readErr error // read error held back until queued lines are drained

	closeOnce sync.Once
	closed    chan struct{}
}

// StreamOption configures a StreamTransport.
type StreamOption func(*StreamTransport)

// WithWriteTimeout bounds each Send that has no context deadline.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(t *StreamTransport) { t.writeTimeout = d }
}

// WithMaxFrameSize bounds the length of a single received line.
func WithMaxFrameSize(n int) StreamOption {
	return func(t *StreamTransport) { t.lines = protocol.NewLineBuffer(n) }
}

// NewStreamTransport wraps an established connection.
func NewStreamTransport(conn net.Conn, opts ...StreamOption) *StreamTransport {
	t := &StreamTransport{
		conn:         conn,
		writeTimeout: 10 * time.Second,
		lines:        protocol.NewLineBuffer(0),
		readBuf:      make([]byte, 32*1024),
		closed:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *StreamTransport) Send(ctx context.Context, data []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()

	if t.isClosed() {
		return ErrTransportClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	} else if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	if err := protocol.Encode(t.conn, data); err != nil {
		return t.mapErr(err)
	}
	return nil
}

// Receive returns the next complete line. Cancelling ctx interrupts a blocked
// read; the transport remains usable afterwards.
func (t *StreamTransport) Receive(ctx context.Context) ([]byte, error) {
	for len(t.queue) == 0 {
		if t.readErr != nil {
			return nil, t.readErr
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t.conn.SetReadDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			t.conn.SetReadDeadline(time.Now())
		})
		n, err := t.conn.Read(t.readBuf)
		stop()

		if n > 0 {
			lines, ferr := t.lines.Feed(t.readBuf[:n])
			t.queue = append(t.queue, lines...)
			if ferr != nil {
				t.readErr = ferr
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && isTimeout(err) {
				if len(t.queue) > 0 {
					break
				}
				return nil, ctxErr
			}
			t.readErr = t.mapErr(err)
		}
	}

	line := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	return line, nil
}

func (t *StreamTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr describes the peer for logging.
func (t *StreamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return t.conn.LocalAddr().Network()
}

func (t *StreamTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *StreamTransport) mapErr(err error) error {
	if errors.Is(err, net.ErrClosed) || t.isClosed() {
		return ErrTransportClosed
	}
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// StreamDialer connects to a Unix domain socket or TCP address.
type StreamDialer struct {
	Network string
	Address string
	Options []StreamOption
}

func (d *StreamDialer) Dial(ctx context.Context) (Transport, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, d.Network, d.Address)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn, d.Options...), nil
}
