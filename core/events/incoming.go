package events

import (
	"encoding/base64"
	"fmt"
)

const (
	// KindInitiationMetadata identifies the server handshake reply.
	KindInitiationMetadata Kind = "conversation_initiation_metadata"
	// KindAudio identifies an agent audio chunk.
	KindAudio Kind = "audio"
	// KindAgentResponse identifies agent reply text.
	KindAgentResponse Kind = "agent_response"
	// KindAgentResponseCorrection identifies a corrected (truncated) agent reply.
	KindAgentResponseCorrection Kind = "agent_response_correction"
	// KindUserTranscript identifies a final user transcript.
	KindUserTranscript Kind = "user_transcript"
	// KindClientToolCall identifies a request to run a client tool.
	KindClientToolCall Kind = "client_tool_call"
	// KindAgentToolResponse identifies the outcome of an agent-side tool.
	KindAgentToolResponse Kind = "agent_tool_response"
	// KindVadScore identifies a voice activity detection score.
	KindVadScore Kind = "vad_score"
	// KindPing identifies a keep-alive ping.
	KindPing Kind = "ping"
	// KindInterruption identifies a user interruption of the agent.
	KindInterruption Kind = "interruption"
)

// InitiationMetadata is sent by the server once the conversation exists.
type InitiationMetadata struct {
	Base
	ConversationID         string
	AgentOutputAudioFormat string
	UserInputAudioFormat   string
}

// Audio carries a chunk of agent speech.
type Audio struct {
	Base
	EventID     int
	AudioBase64 string
}

// Bytes decodes the base64 audio payload.
func (a Audio) Bytes() ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(a.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio event %d: %w", a.EventID, err)
	}
	return audio, nil
}

// AgentResponse carries the agent reply text. EventID is zero when the
// server did not attach one.
type AgentResponse struct {
	Base
	Text    string
	EventID int
}

// AgentResponseCorrection replaces a reply that was cut short.
type AgentResponseCorrection struct {
	Base
	OriginalResponse  string
	CorrectedResponse string
	EventID           int
}

// UserTranscript is the final transcript of a user utterance.
type UserTranscript struct {
	Base
	Text    string
	EventID int
}

// ClientToolCall asks the client to run a registered tool.
type ClientToolCall struct {
	Base
	ToolName        string
	ToolCallID      string
	Parameters      Params
	ExpectsResponse bool
}

// AgentToolResponse reports a tool the agent ran on its side.
type AgentToolResponse struct {
	Base
	ToolName   string
	ToolCallID string
	ToolType   string
	IsError    bool
}

// VadScore is the probability that the latest user audio contains speech.
type VadScore struct {
	Base
	Score float64
}

// Ping must be answered with a [Pong] carrying the same EventID.
type Ping struct {
	Base
	EventID int
	// PingMs is the measured round trip, nil when the server did not send one.
	PingMs *int
}

// Interruption marks that the user started talking over the agent.
type Interruption struct {
	Base
	EventID int
}
