package realtime

// State is the connection lifecycle of a Channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	}
	return "unknown"
}

// Indicator is the status-line label for the state.
func (s State) Indicator() string {
	switch s {
	case Connected:
		return "● 연결됨"
	case Connecting:
		return "◌ 연결 중"
	}
	return "○ 연결 끊김"
}
