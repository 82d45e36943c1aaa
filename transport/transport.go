// Package transport provides the byte channels requests and responses travel on.
//
// Every transport exposes the same three operations so the client correlator and
// the server dispatcher never know which one they are using:
//
//	Send(ctx, msg)   write one complete message
//	Receive(ctx)     block for the next complete message
//	Close()          release the connection; pending Receive calls return
//
// Implementations:
//
//	unix, tcp   StreamTransport     newline framed JSON over net.Conn
//	ws          WebSocketTransport  one text frame per message
//	http        HTTPTransport       one POST per request (client side only)
//
// Windows named pipes are not supported; on Windows use tcp instead.
//
// A transport has exactly one reader. Send may be called from many goroutines.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransportClosed = errors.New("transport is closed")
	ErrUnknownNetwork  = errors.New("unknown network")
)

const (
	NetworkUnix      = "unix"
	NetworkTCP       = "tcp"
	NetworkWebSocket = "ws"
	NetworkHTTP      = "http"
)

// Networks lists every network NewDialer understands.
var Networks = []string{NetworkUnix, NetworkTCP, NetworkWebSocket, NetworkHTTP}

type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer establishes a new Transport. The client calls it for the first
// connection and again for every reconnection attempt.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// ValidNetwork reports whether network is one of Networks.
func ValidNetwork(network string) bool {
	for _, n := range Networks {
		if n == network {
			return true
		}
	}
	return false
}

// NewDialer returns the dialer for a network/address pair.
//
//	unix  /tmp/editor-rpc.sock
//	tcp   127.0.0.1:7777
//	ws    127.0.0.1:7777 or ws://127.0.0.1:7777/ws
//	http  127.0.0.1:7777 or http://127.0.0.1:7777
func NewDialer(network, address string) (Dialer, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address for network %q", network)
	}
	switch network {
	case NetworkUnix, NetworkTCP:
		return &StreamDialer{Network: network, Address: address}, nil
	case NetworkWebSocket:
		return &WebSocketDialer{URL: WebSocketURL(address)}, nil
	case NetworkHTTP:
		return &HTTPDialer{BaseURL: HTTPBaseURL(address)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// WebSocketURL expands host:port into the server's websocket endpoint URL.
func WebSocketURL(address string) string {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return address
	}
	return "ws://" + address + WebSocketPath
}

// HTTPBaseURL expands host:port into an http base URL without trailing slash.
func HTTPBaseURL(address string) string {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return strings.TrimRight(address, "/")
}

// Endpoint paths served by the server's HTTP surface.
const (
	WebSocketPath = "/ws"
	RPCPath       = "/rpc"
	HealthPath    = "/healthz"
)
