package commands

import (
	"github.com/spf13/cobra"
)

const appName = "convai"

var (
	cfgFile string
	flags   Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Conversational agent client",
	Long: `convai connects to a conversational agent over websocket or WebRTC.

Settings come from the config file, then the environment, then flags:

  CONVAI_AGENT_ID  agent to talk to (public agents)
  CONVAI_TOKEN     conversation token (private agents)
  CONVAI_API_KEY   API key used to fetch tokens server side`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command returns the root command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/convai/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.AgentID, "agent-id", "", "agent id")
	rootCmd.PersistentFlags().StringVar(&flags.ConversationToken, "token", "", "conversation token for private agents")
	rootCmd.PersistentFlags().StringVar(&flags.APIKey, "api-key", "", "API key for the token service")
	rootCmd.PersistentFlags().StringVar(&flags.ServerURL, "server-url", "", "agent endpoint")
	rootCmd.PersistentFlags().StringVar(&flags.TokenURL, "token-url", "", "token service base url")
	rootCmd.PersistentFlags().StringVar(&flags.Transport, "transport", "", "transport: websocket or webrtc")
	rootCmd.PersistentFlags().StringVar(&flags.Audio, "audio", "", "audio devices: none, miniaudio or portaudio")
	rootCmd.PersistentFlags().BoolVar(&flags.TextOnly, "text-only", false, "text conversation without audio")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(toolsCmd)
}
