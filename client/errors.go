package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send while the client is not Connected.
	// Requests are never queued across a reconnection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed rejects every pending request when the connection drops.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrTimeout rejects a request that got no response within Config.RequestTimeout.
	ErrTimeout = errors.New("request timed out")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client closed")

	// ErrConnecting is returned by Connect while a connection attempt is already running.
	ErrConnecting = errors.New("connection attempt in progress")
)

// RemoteError carries the error string of a response envelope: an unknown
// command, a handler failure, or a server-side middleware rejection.
type RemoteError struct {
	ID      string
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}
