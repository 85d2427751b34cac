package events

import "time"

// Kind is the wire `type` discriminator of a protocol message.
type Kind string

// Event is an inbound protocol message decoded from the agent. The set of
// implementations is closed; see [Decode].
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	inbound()
}

// Outgoing is a protocol message sent by the client. The set of
// implementations is closed; see [Encode].
type Outgoing interface {
	Kind() Kind
	outbound()
}

// Base carries the fields shared by all inbound events.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

// Timestamp reports when the event was decoded.
func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (Base) inbound() {}

type outgoing struct{}

func (outgoing) outbound() {}
