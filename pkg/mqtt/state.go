package mqtt

// State is the connection lifecycle state.
//
//	Disconnected -> Connecting -> Connected -> ConnectionLost -> Connecting ...
//	any state -> Disconnected (Disconnect)
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateConnectionLost
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}
