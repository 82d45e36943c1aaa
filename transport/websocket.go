package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport carries one message per text frame. No extra framing is
// needed: the websocket protocol already delimits messages.
type WebSocketTransport struct {
	conn    *websocket.Conn
	sending sync.Mutex // gorilla allows one concurrent writer

	closeOnce sync.Once
	closed    chan struct{}
}

func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{
		conn:   conn,
		closed: make(chan struct{}),
	}
}

func (t *WebSocketTransport) Send(ctx context.Context, data []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()

	if t.isClosed() {
		return ErrTransportClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	} else {
		t.conn.SetWriteDeadline(time.Time{})
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return t.mapErr(err)
	}
	return nil
}

// Receive returns the next data frame. A websocket connection cannot be read
// again after a failed read, so cancelling ctx ends the transport.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		t.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, t.mapErr(err)
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		t.sending.Lock()
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.sending.Unlock()
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr describes the peer for logging.
func (t *WebSocketTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *WebSocketTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *WebSocketTransport) mapErr(err error) error {
	if t.isClosed() || errors.Is(err, websocket.ErrCloseSent) {
		return ErrTransportClosed
	}
	return err
}

// WebSocketDialer connects to the server's websocket endpoint.
type WebSocketDialer struct {
	URL    string
	Header http.Header
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn), nil
}
