// Package loadbalance picks which advertised server instance a client dials.
//
// Normally exactly one editor window advertises a service name. When several
// do (two windows on the same workspace), the client rotates through them on
// successive dials instead of hammering one that may be gone.
package loadbalance

import "editor-rpc/registry"

// Balancer is the interface for selection strategies.
// Pick is called before every dial and must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
