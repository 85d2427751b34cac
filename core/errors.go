package convai

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive is returned by Start while the session is connecting,
	// connected or shutting down.
	ErrSessionActive = errors.New("conversation already active")
	// ErrSessionEnded is returned by Start once End was called. Sessions
	// cannot be restarted.
	ErrSessionEnded = errors.New("conversation ended")
)

// ConfigurationError reports an invalid [Config] or missing option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}
