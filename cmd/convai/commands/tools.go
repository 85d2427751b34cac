package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/tools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the client tools offered to the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tools.NewRegistry()
		defer registry.Close()
		for name, tool := range demoTools() {
			if err := registry.Register(name, tool); err != nil {
				return err
			}
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(registry.Definitions())
	},
}

type timeParams struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name; local time when empty"`
}

// demoTools are registered with every chat so agents configured with
// matching client tools have something to call.
func demoTools() map[string]tools.Tool {
	return map[string]tools.Tool{
		"echo": tools.Func(func(_ context.Context, params events.Params) (any, error) {
			return params.Interface(), nil
		}),
		"get_time": tools.NewTyped("Returns the current time.", func(_ context.Context, params timeParams) (any, error) {
			now := time.Now()
			if params.Timezone != "" {
				location, err := time.LoadLocation(params.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown time zone %q", params.Timezone)
				}
				now = now.In(location)
			}
			return now.Format(time.RFC1123), nil
		}),
	}
}
