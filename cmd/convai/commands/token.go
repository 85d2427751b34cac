package commands

import (
	"fmt"

	convai "github.com/koscakluka/convai-core/core"
	"github.com/koscakluka/convai-core/core/tokens"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Fetch a conversation token",
	Long: `Fetch a conversation token for the configured agent and print it.

Private agents need an API key, set with --api-key or CONVAI_API_KEY.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, flags)
		if err != nil {
			return err
		}
		if cfg.AgentID == "" {
			return fmt.Errorf("agent id is required (--agent-id or CONVAI_AGENT_ID)")
		}

		token, err := newTokenClient(cfg).Fetch(cmd.Context(), tokens.Request{
			AgentID: cfg.AgentID,
			Source:  appName,
			Version: convai.Version,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func newTokenClient(cfg Config) *tokens.Client {
	var opts []tokens.Option
	if cfg.TokenURL != "" {
		opts = append(opts, tokens.WithBaseURL(cfg.TokenURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, tokens.WithAPIKey(cfg.APIKey))
	}
	return tokens.NewClient(opts...)
}
