package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	convai "github.com/koscakluka/convai-core/core"
	"github.com/koscakluka/convai-core/core/events"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigLayers(t *testing.T) {
	path := writeConfig(t, `
agent_id: from-file
api_key: file-key
transport: webrtc
server_url: https://example.test/rtc
dynamic_variables:
  user_name: Ana
overrides:
  first_message: Hi there
  voice_id: voice-1
`)
	t.Setenv("CONVAI_AGENT_ID", "from-env")
	t.Setenv("CONVAI_TOKEN", "")
	t.Setenv("CONVAI_API_KEY", "")

	cfg, err := loadConfig(path, Config{Transport: "websocket"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	want := Config{
		AgentID:          "from-env",
		APIKey:           "file-key",
		ServerURL:        "https://example.test/rtc",
		Transport:        "websocket",
		Audio:            "none",
		DynamicVariables: map[string]any{"user_name": "Ana"},
		Overrides:        &OverridesConfig{FirstMessage: "Hi there", VoiceID: "voice-1"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONVAI_AGENT_ID", "")
	t.Setenv("CONVAI_TOKEN", "")
	t.Setenv("CONVAI_API_KEY", "")

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), Config{}); err == nil {
		t.Fatalf("expected an error for a missing explicit config file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfig(t, "agent_id: [unterminated")
	if _, err := loadConfig(path, Config{}); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := Config{
		AgentID: "agent-1",
		Audio:   "miniaudio",
		Overrides: &OverridesConfig{
			Prompt:   "Be brief.",
			Language: "hr",
		},
	}

	want := convai.Config{
		AgentID: "agent-1",
		Source:  appName,
		Overrides: &events.Overrides{
			Agent: &events.AgentOverrides{Prompt: "Be brief.", Language: "hr"},
		},
	}
	if diff := cmp.Diff(want, cfg.sessionConfig()); diff != "" {
		t.Fatalf("session config mismatch (-want +got):\n%s", diff)
	}

	cfg.Audio = "none"
	if !cfg.sessionConfig().TextOnly {
		t.Fatalf("expected a session without audio devices to be text only")
	}
}

func TestNewAudioDevicesNone(t *testing.T) {
	for _, cfg := range []Config{{Audio: "none"}, {Audio: ""}, {Audio: "miniaudio", TextOnly: true}} {
		devices, err := newAudioDevices(cfg)
		if err != nil || devices != nil {
			t.Fatalf("newAudioDevices(%+v) = %v, %v; want no devices", cfg, devices, err)
		}
	}
	if _, err := newAudioDevices(Config{Audio: "speakers"}); err == nil {
		t.Fatalf("expected an error for an unknown audio backend")
	}
}

func TestNewTransport(t *testing.T) {
	if _, err := newTransport(Config{Transport: "webrtc"}); err == nil {
		t.Fatalf("expected webrtc without a server url to fail")
	}
	if _, err := newTransport(Config{Transport: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected an error for an unknown transport")
	}
	if _, err := newTransport(Config{}); err != nil {
		t.Fatalf("newTransport() error = %v", err)
	}
}

func TestDemoToolsDescribe(t *testing.T) {
	names := map[string]bool{}
	for name := range demoTools() {
		names[name] = true
	}
	if diff := cmp.Diff(map[string]bool{"echo": true, "get_time": true}, names); diff != "" {
		t.Fatalf("demo tools mismatch (-want +got):\n%s", diff)
	}
}
