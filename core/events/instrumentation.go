package events

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/convai-core/core/events"

var meter = otel.Meter(scopeName)

var (
	decodedEvents, _  = meter.Int64Counter("convai.events.decoded")
	decodeFailures, _ = meter.Int64Counter("convai.events.decode_failures")
)
