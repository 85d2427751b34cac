package transport

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/convai-core/core/transport"

var logger = otelslog.NewLogger(scopeName)
