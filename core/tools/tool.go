// Package tools runs client-side tools on behalf of the remote agent.
//
// A [Registry] maps tool names to [Tool] implementations. Every call is
// validated, bounded by a timeout and converted into a [Result], so a
// misbehaving tool can never take the conversation down with it.
package tools

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/convai-core/core/events"
)

// Tool is a client-side function the agent can invoke.
//
// The returned value becomes the result text sent back to the agent: strings
// and byte slices are sent as is, anything else is JSON encoded. Returning
// nil with a nil error means the tool has nothing to report and no result is
// sent.
type Tool interface {
	Call(ctx context.Context, params events.Params) (any, error)
}

// Describer is implemented by tools that can advertise themselves, see
// [Registry.Definitions].
type Describer interface {
	Description() string
	Schema() *jsonschema.Schema
}

// Func adapts a plain function to [Tool].
type Func func(ctx context.Context, params events.Params) (any, error)

func (f Func) Call(ctx context.Context, params events.Params) (any, error) {
	return f(ctx, params)
}

// Definition describes a registered tool.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}
