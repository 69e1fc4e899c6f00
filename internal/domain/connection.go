package domain

// ConnectionState is the streaming connection state machine.
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	CONNECTED    -> RECONNECTING on any drop
//	RECONNECTING -> SIMULATED after the retry budget is exhausted
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateSimulated
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateSimulated:
		return "SIMULATED"
	default:
		return "UNKNOWN"
	}
}

// Live reports whether the state carries real-time exchange data.
func (s ConnectionState) Live() bool {
	return s == StateConnected
}
