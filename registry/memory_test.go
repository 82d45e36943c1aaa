package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	inst1 := ServiceInstance{Network: "unix", Addr: "/tmp/a.sock"}
	inst2 := ServiceInstance{Network: "tcp", Addr: "127.0.0.1:7001"}

	require.NoError(t, reg.Register(ctx, "editor", inst1, 10))
	require.NoError(t, reg.Register(ctx, "editor", inst2, 10))

	instances, err := reg.Discover(ctx, "editor")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{inst1, inst2}, instances)

	// Re-registering the same address replaces the entry.
	inst1.Version = "2"
	require.NoError(t, reg.Register(ctx, "editor", inst1, 10))
	instances, _ = reg.Discover(ctx, "editor")
	require.Len(t, instances, 2)
	assert.Equal(t, "2", instances[0].Version)

	require.NoError(t, reg.Deregister(ctx, "editor", inst1.Addr))
	instances, _ = reg.Discover(ctx, "editor")
	assert.Equal(t, []ServiceInstance{inst2}, instances)

	instances, err = reg.Discover(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
