package server

import (
	"editor-rpc/transport"

	"github.com/google/uuid"
)

// Peer is one accepted client connection.
type Peer struct {
	ID     string
	Kind   string // network it arrived on: unix, tcp or ws
	Remote string

	t transport.Transport
}

func newPeer(kind, remote string, t transport.Transport) *Peer {
	return &Peer{
		ID:     uuid.NewString(),
		Kind:   kind,
		Remote: remote,
		t:      t,
	}
}

func (p *Peer) Close() error {
	return p.t.Close()
}
