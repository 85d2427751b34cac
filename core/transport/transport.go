// Package transport defines the connection a conversation session runs over.
//
// A [Transport] moves opaque JSON messages between the client and the agent
// server and reports its [ConnectionState]. Concrete adapters live in the
// websocket and webrtc sub-packages; both share [StateTracker] so that state
// notifications are validated and never repeated.
package transport

import (
	"context"

	"github.com/koscakluka/convai-core/core/events"
)

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange is delivered to state observers. ConversationID is set when
// the transport learns the server conversation id, normally together with
// StateConnected; Err is set for StateError.
type StateChange struct {
	State          ConnectionState
	ConversationID string
	Err            error
}

// SessionParams carry what the adapter needs besides the token and url.
type SessionParams struct {
	// Initiation is sent as the first message once the connection is up.
	Initiation *events.InitiationClientData
}

type Transport interface {
	// Connect blocks until the transport is connected and the initiation
	// message is sent, or fails.
	Connect(ctx context.Context, token, serverURL string, params SessionParams) error
	// Disconnect closes the connection. It is safe to call in any state and
	// more than once.
	Disconnect() error
	// Send writes one message; it fails with ErrNotConnected unless the
	// transport is connected.
	Send(message []byte) error
	State() ConnectionState

	// ObserveState and ObserveMessages set the single observer of each
	// stream. Observers are called from transport goroutines.
	ObserveState(observer func(StateChange))
	ObserveMessages(observer func(message []byte))
}

// AudioSender is implemented by transports that carry microphone audio
// in-band with the event messages.
type AudioSender interface {
	SendAudio(chunk []byte) error
}

// EncodeInitiation returns the encoded initiation message of params, or nil
// when there is none to send.
func (p SessionParams) EncodeInitiation() ([]byte, error) {
	if p.Initiation == nil {
		return nil, nil
	}
	return events.Encode(*p.Initiation)
}
