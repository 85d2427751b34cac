// convai talks to a conversational agent from the terminal.
//
// Usage:
//
//	convai chat                   # chat with the configured agent
//	convai chat --audio miniaudio # talk through the default audio devices
//	convai token                  # print a conversation token
//	convai tools                  # list the client tools offered to the agent
//
// Configuration is read from ~/.config/convai/config.yaml and from the
// CONVAI_AGENT_ID, CONVAI_TOKEN and CONVAI_API_KEY environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/convai-core/cmd/convai/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
