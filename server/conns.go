package server

import (
	"sync"

	"go.uber.org/zap"
)

// ConnRegistry tracks open peers so they can be torn down together.
type ConnRegistry struct {
	log *zap.Logger

	mu    sync.Mutex
	peers map[*Peer]struct{}
}

func NewConnRegistry(logger *zap.Logger) *ConnRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnRegistry{
		log:   logger,
		peers: make(map[*Peer]struct{}),
	}
}

func (r *ConnRegistry) Add(p *Peer) {
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()
}

// Remove is a no-op for a peer that is not registered.
func (r *ConnRegistry) Remove(p *Peer) {
	r.mu.Lock()
	delete(r.peers, p)
	r.mu.Unlock()
}

func (r *ConnRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// CloseAll empties the registry and closes every peer it held. A peer that
// fails to close is logged and skipped. It returns how many peers it closed
// without error.
func (r *ConnRegistry) CloseAll() int {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[*Peer]struct{})
	r.mu.Unlock()

	closed := 0
	for p := range peers {
		if err := p.Close(); err != nil {
			r.log.Warn("failed to close connection",
				zap.String("peer", p.ID),
				zap.String("remote", p.Remote),
				zap.Error(err))
			continue
		}
		closed++
	}
	return closed
}
