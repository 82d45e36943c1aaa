// Package registry lets clients find the server without a hard-coded address.
//
// The server advertises where it listens (network + address) under a service
// name; the client looks the service up before every dial, so an editor window
// that reloads and comes back on a new socket path is found again while the
// client is still reconnecting.
package registry

import "context"

type ServiceInstance struct {
	Network string `json:"network"` // unix, tcp, ws or http
	Addr    string `json:"addr"`
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Close() error
}
