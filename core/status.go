package convai

import "github.com/koscakluka/convai-core/core/transport"

// Status is the lifecycle state of a [Session] as seen by the host
// application.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Mode tells whether the agent is talking or waiting for the user.
type Mode int

const (
	ModeListening Mode = iota
	ModeSpeaking
)

func (m Mode) String() string {
	if m == ModeSpeaking {
		return "speaking"
	}
	return "listening"
}

// statusFromConnection is total over transport states. Disconnecting has no
// transport counterpart; only the session enters it.
func statusFromConnection(state transport.ConnectionState) Status {
	switch state {
	case transport.StateConnected:
		return StatusConnected
	case transport.StateConnecting:
		return StatusConnecting
	case transport.StateError:
		return StatusError
	default:
		return StatusDisconnected
	}
}
