package client

// State is the lifecycle state of a Client's connection.
//
//	Disconnected ──Connect──→ Connecting ──ok──→ Connected
//	     ↑                        │                  │ unexpected close
//	     └────────fail────────────┘                  ↓
//	     ↑                                      Reconnecting ──ok──→ Connected
//	     └──────────attempts exhausted───────────────┘
//
// Close moves any state straight to Disconnected.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
