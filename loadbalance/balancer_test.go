package loadbalance

import (
	"editor-rpc/registry"
	"errors"
	"testing"
)

var testInstances = []registry.ServiceInstance{
	{Network: "unix", Addr: "/tmp/a.sock"},
	{Network: "unix", Addr: "/tmp/b.sock"},
	{Network: "ws", Addr: "127.0.0.1:7003"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances in order
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: expect %s, got %s", i, testInstances[i].Addr, inst.Addr)
		}
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	_, err := b.Pick([]registry.ServiceInstance{})
	if !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestRoundRobinName(t *testing.T) {
	if name := (&RoundRobinBalancer{}).Name(); name != "RoundRobin" {
		t.Fatalf("unexpected name %q", name)
	}
}
