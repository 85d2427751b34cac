package convai

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/convai-core/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	dispatchWait, _ = meter.Float64Histogram("convai.dispatch.wait",
		metric.WithDescription("Time tasks spend queued before the session loop runs them"),
		metric.WithUnit("s"))
	sentEvents, _ = meter.Int64Counter("convai.events.sent",
		metric.WithDescription("Outgoing events by type and outcome"))
)
