package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/convai-core/core/events"
)

// Typed is a tool whose parameters are decoded into T before the handler
// runs. The JSON schema of T is reflected once and served through
// [Describer].
type Typed[T any] struct {
	description string
	schema      *jsonschema.Schema
	handler     func(ctx context.Context, params T) (any, error)
}

func NewTyped[T any](description string, handler func(ctx context.Context, params T) (any, error)) *Typed[T] {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	var zero T
	return &Typed[T]{
		description: description,
		schema:      reflector.Reflect(&zero),
		handler:     handler,
	}
}

func (t *Typed[T]) Call(ctx context.Context, params events.Params) (any, error) {
	raw, err := json.Marshal(params.Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	var decoded T
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return t.handler(ctx, decoded)
}

func (t *Typed[T]) Description() string { return t.description }

func (t *Typed[T]) Schema() *jsonschema.Schema { return t.schema }
