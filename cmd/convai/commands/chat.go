package commands

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	convai "github.com/koscakluka/convai-core/core"
	"github.com/koscakluka/convai-core/core/audio/miniaudio"
	"github.com/koscakluka/convai-core/core/audio/portaudio"
	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/transport"
	"github.com/koscakluka/convai-core/core/transport/webrtc"
	"github.com/koscakluka/convai-core/core/transport/websocket"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent",
	Long: `Start a conversation with the configured agent.

Keys:
  enter   send the typed message
  ctrl+t  toggle the microphone
  ctrl+y  like the last agent response
  ctrl+n  dislike the last agent response
  esc     end the conversation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, flags)
		if err != nil {
			return err
		}
		return runChat(cmd, cfg)
	},
}

func init() {
	chatCmd.Flags().IntVar(&flags.SampleRate, "sample-rate", 0, "miniaudio sample rate")
}

func runChat(cmd *cobra.Command, cfg Config) error {
	feed := make(chan chatEntry, 256)
	push := func(entry chatEntry) {
		select {
		case feed <- entry:
		default:
		}
	}

	t, err := newTransport(cfg)
	if err != nil {
		return err
	}

	opts := []convai.Option{
		convai.WithTransport(t),
		convai.WithTokenFetcher(newTokenClient(cfg)),
		convai.WithTools(demoTools()),
		convai.WithConnectCallback(func(conversationID string) {
			push(chatEntry{kind: entrySystem, text: "connected to conversation " + conversationID})
		}),
		convai.WithDisconnectCallback(func(err error) {
			text := "disconnected"
			if err != nil {
				text = "disconnected: " + err.Error()
			}
			push(chatEntry{kind: entrySystem, text: text})
		}),
		convai.WithMessageCallback(func(message convai.Message) {
			kind := entryAgent
			if message.Source == convai.SourceUser {
				kind = entryUser
			}
			push(chatEntry{kind: kind, text: message.Text})
		}),
		convai.WithCorrectionCallback(func(correction events.AgentResponseCorrection) {
			push(chatEntry{kind: entrySystem, text: "agent corrected: " + correction.CorrectedResponse})
		}),
		convai.WithUnhandledToolCallCallback(func(call events.ClientToolCall) {
			push(chatEntry{kind: entrySystem, text: fmt.Sprintf("agent called unknown tool %q", call.ToolName)})
		}),
		convai.WithAgentToolResponseCallback(func(response events.AgentToolResponse) {
			text := "agent ran " + response.ToolName
			if response.IsError {
				text += " (failed)"
			}
			push(chatEntry{kind: entrySystem, text: text})
		}),
	}

	devices, err := newAudioDevices(cfg)
	if err != nil {
		return err
	}
	if devices != nil {
		opts = append(opts, convai.WithAudioInput(devices), convai.WithAudioOutput(devices))
	}

	// The session releases the devices when it ends.
	session, err := convai.NewSession(cfg.sessionConfig(), opts...)
	if err != nil {
		if devices != nil {
			devices.Close()
		}
		return err
	}
	defer session.End()

	session.ObserveStatus(func(status convai.Status) {
		push(chatEntry{kind: entryStatus, text: status.String()})
	})
	session.ObserveMode(func(mode convai.Mode) {
		push(chatEntry{kind: entryMode, text: mode.String()})
	})
	session.ObserveMuted(func(muted bool) {
		push(chatEntry{kind: entryMuted, muted: muted})
	})

	if err := session.Start(cmd.Context()); err != nil {
		return err
	}

	program := tea.NewProgram(newChatModel(session, feed), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run chat: %w", err)
	}

	session.End()
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

func newTransport(cfg Config) (transport.Transport, error) {
	switch cfg.Transport {
	case "", "websocket":
		var opts []websocket.Option
		if cfg.APIKey != "" && cfg.ConversationToken == "" {
			opts = append(opts, websocket.WithHeader("xi-api-key", cfg.APIKey))
		}
		return websocket.New(opts...), nil
	case "webrtc":
		if cfg.ServerURL == "" {
			return nil, errors.New("webrtc transport needs --server-url")
		}
		return webrtc.New(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// audioDevices is a local microphone and speaker pair.
type audioDevices interface {
	convai.AudioInput
	convai.AudioOutput
}

func newAudioDevices(cfg Config) (audioDevices, error) {
	if cfg.TextOnly {
		return nil, nil
	}
	switch cfg.Audio {
	case "", "none":
		return nil, nil
	case "miniaudio":
		var opts []miniaudio.Option
		if cfg.SampleRate > 0 {
			opts = append(opts, miniaudio.WithSampleRate(cfg.SampleRate))
		}
		client, err := miniaudio.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio devices: %w", err)
		}
		return client, nil
	case "portaudio":
		client, err := portaudio.NewClient(1024)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio devices: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Audio)
	}
}
