package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// maxHTTPBody bounds a single response body read by HTTPTransport.
const maxHTTPBody = 16 << 20

// HTTPTransport sends each message as its own POST and feeds the response body
// back through Receive, so the correlator sees the same request/response stream
// it would on a socket.
//
// A failed round trip (connection refused, reset) fails the whole transport,
// just as a broken socket would. A non-2xx status fails only that request: a
// response envelope carrying the status is synthesized for its id.
type HTTPTransport struct {
	url    string
	client *http.Client

	inbox  chan []byte
	failed chan struct{}
	err    error
	once   sync.Once // guards err/failed

	ctx    context.Context // cancelled by Close, aborts in-flight posts
	cancel context.CancelFunc
	mu     sync.Mutex // orders wg.Add in Send against Close
	wg     sync.WaitGroup
}

func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPTransport{
		url:    HTTPBaseURL(baseURL) + RPCPath,
		client: client,
		inbox:  make(chan []byte, 64),
		failed: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send starts the round trip and returns without waiting for the response.
func (t *HTTPTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.ctx.Done():
		return ErrTransportClosed
	case <-t.failed:
		return t.err
	default:
	}

	body := append([]byte(nil), data...)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.roundTrip(body)
	}()
	return nil
}

func (t *HTTPTransport) roundTrip(body []byte) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		t.fail(err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.fail(err)
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		t.fail(err)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload = statusEnvelope(body, resp.StatusCode, payload)
		if payload == nil {
			return
		}
	}

	select {
	case t.inbox <- payload:
	case <-t.ctx.Done():
	}
}

// statusEnvelope builds an error response for the request in body, or nil if
// the request id cannot be recovered.
func statusEnvelope(body []byte, status int, payload []byte) []byte {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.ID == "" {
		return nil
	}
	msg := fmt.Sprintf("http status %d", status)
	if detail := bytes.TrimSpace(payload); len(detail) > 0 && len(detail) < 512 {
		msg += ": " + string(detail)
	}
	out, err := json.Marshal(map[string]string{"id": req.ID, "error": msg})
	if err != nil {
		return nil
	}
	return out
}

func (t *HTTPTransport) fail(err error) {
	if t.ctx.Err() != nil {
		return
	}
	t.once.Do(func() {
		t.err = fmt.Errorf("http transport: %w", err)
		close(t.failed)
	})
}

func (t *HTTPTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-t.inbox:
		return data, nil
	case <-t.failed:
		return nil, t.err
	case <-t.ctx.Done():
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}

// HTTPDialer checks the server's health endpoint and returns an HTTPTransport.
type HTTPDialer struct {
	BaseURL string
	Client  *http.Client
}

func (d *HTTPDialer) Dial(ctx context.Context) (Transport, error) {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	base := HTTPBaseURL(d.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+HealthPath, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check %s: status %d", base+HealthPath, resp.StatusCode)
	}
	return NewHTTPTransport(base, client), nil
}
