package registry

import (
	"context"
	"sync"
)

// MemoryRegistry keeps instances in process memory. It serves tests and
// single-process setups where client and server share one registry value.
// TTLs are ignored: entries live until deregistered.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[string][]ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[string][]ServiceInstance)}
}

// Register adds or replaces the instance with the same address.
func (m *MemoryRegistry) Register(ctx context.Context, serviceName string, inst ServiceInstance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[serviceName]
	for i := range insts {
		if insts[i].Addr == inst.Addr {
			insts[i] = inst
			return nil
		}
	}
	m.instances[serviceName] = append(insts, inst)
	return nil
}

func (m *MemoryRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

// Discover returns a copy of the registered instances.
func (m *MemoryRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ServiceInstance(nil), m.instances[serviceName]...), nil
}

func (m *MemoryRegistry) Close() error {
	return nil
}
