package client

import (
	"context"
	"editor-rpc/loadbalance"
	"editor-rpc/registry"
	"editor-rpc/transport"
	"fmt"

	"go.uber.org/zap"
)

var defaultBalancer loadbalance.Balancer = &loadbalance.RoundRobinBalancer{}

// DiscoveryDialer resolves Service through Registry on every dial, so a
// reconnecting client follows a server that came back on a different address.
type DiscoveryDialer struct {
	Registry registry.Registry
	Service  string
	Balancer loadbalance.Balancer // defaults to round robin
	Logger   *zap.Logger
}

func (d *DiscoveryDialer) Dial(ctx context.Context) (transport.Transport, error) {
	instances, err := d.Registry.Discover(ctx, d.Service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", d.Service, err)
	}

	b := d.Balancer
	if b == nil {
		b = defaultBalancer
	}
	inst, err := b.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", d.Service, err)
	}

	if d.Logger != nil {
		d.Logger.Debug("dialing discovered instance",
			zap.String("service", d.Service),
			zap.String("network", inst.Network),
			zap.String("addr", inst.Addr),
			zap.String("balancer", b.Name()))
	}

	dialer, err := transport.NewDialer(inst.Network, inst.Addr)
	if err != nil {
		return nil, err
	}
	return dialer.Dial(ctx)
}
