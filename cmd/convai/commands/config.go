package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	convai "github.com/koscakluka/convai-core/core"
	"github.com/koscakluka/convai-core/core/events"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration. Later sources override earlier ones:
// file, environment, flags.
type Config struct {
	AgentID           string `yaml:"agent_id"`
	ConversationToken string `yaml:"conversation_token"`
	APIKey            string `yaml:"api_key"`
	ServerURL         string `yaml:"server_url"`
	TokenURL          string `yaml:"token_url"`
	// Transport is "websocket" or "webrtc".
	Transport string `yaml:"transport"`
	// Audio is "none", "miniaudio" or "portaudio".
	Audio            string           `yaml:"audio"`
	SampleRate       int              `yaml:"sample_rate"`
	TextOnly         bool             `yaml:"text_only"`
	UserID           string           `yaml:"user_id"`
	DynamicVariables map[string]any   `yaml:"dynamic_variables"`
	Overrides        *OverridesConfig `yaml:"overrides"`
}

type OverridesConfig struct {
	Prompt       string `yaml:"prompt"`
	FirstMessage string `yaml:"first_message"`
	Language     string `yaml:"language"`
	VoiceID      string `yaml:"voice_id"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.yaml")
}

// loadConfig merges the config file, the environment and the flags. A
// missing default config file is not an error; a missing explicit one is.
func loadConfig(path string, overrides Config) (Config, error) {
	cfg := Config{Transport: "websocket", Audio: "none"}

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)
	applyFlags(&cfg, overrides)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("CONVAI_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := getenv("CONVAI_TOKEN"); v != "" {
		cfg.ConversationToken = v
	}
	if v := getenv("CONVAI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
}

func applyFlags(cfg *Config, overrides Config) {
	set := func(target *string, value string) {
		if value != "" {
			*target = value
		}
	}
	set(&cfg.AgentID, overrides.AgentID)
	set(&cfg.ConversationToken, overrides.ConversationToken)
	set(&cfg.APIKey, overrides.APIKey)
	set(&cfg.ServerURL, overrides.ServerURL)
	set(&cfg.TokenURL, overrides.TokenURL)
	set(&cfg.Transport, overrides.Transport)
	set(&cfg.Audio, overrides.Audio)
	if overrides.TextOnly {
		cfg.TextOnly = true
	}
}

// sessionConfig converts the CLI configuration into a session config.
func (c Config) sessionConfig() convai.Config {
	cfg := convai.Config{
		AgentID:           c.AgentID,
		ConversationToken: c.ConversationToken,
		ServerURL:         c.ServerURL,
		TextOnly:          c.TextOnly || c.Audio == "none",
		UserID:            c.UserID,
		DynamicVariables:  c.DynamicVariables,
		Source:            appName,
	}
	if o := c.Overrides; o != nil {
		cfg.Overrides = &events.Overrides{}
		if o.Prompt != "" || o.FirstMessage != "" || o.Language != "" {
			cfg.Overrides.Agent = &events.AgentOverrides{
				Prompt:       o.Prompt,
				FirstMessage: o.FirstMessage,
				Language:     o.Language,
			}
		}
		if o.VoiceID != "" {
			cfg.Overrides.TTS = &events.TTSOverrides{VoiceID: o.VoiceID}
		}
	}
	return cfg
}
