package convai

import (
	"context"
	"time"

	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/tokens"
	"github.com/koscakluka/convai-core/core/tools"
	"github.com/koscakluka/convai-core/core/transport"
)

// Config describes the conversation to start.
//
// Either AgentID (public agents, a token is fetched) or ConversationToken
// (private agents) must be set.
type Config struct {
	AgentID           string
	ConversationToken string
	// ServerURL is where the transport connects. It defaults to
	// [DefaultServerURL] with the agent id as query parameter.
	ServerURL string
	// TextOnly disables audio capture and playback.
	TextOnly bool

	Overrides          *events.Overrides
	CustomLLMExtraBody map[string]any
	DynamicVariables   map[string]any
	UserID             string

	// Source and Version identify the client to the server.
	Source  string
	Version string
}

const (
	DefaultServerURL = "wss://api.elevenlabs.io/v1/convai/conversation"
	DefaultSource    = "go_sdk"
	Version          = "0.1.0"
)

// MessageSource tells who said a [Message].
type MessageSource string

const (
	SourceUser  MessageSource = "user"
	SourceAgent MessageSource = "ai"
)

// Message is a line of the conversation transcript.
type Message struct {
	Source MessageSource
	Text   string
}

// TokenFetcher exchanges an agent id for a conversation token.
type TokenFetcher interface {
	Fetch(ctx context.Context, request tokens.Request) (string, error)
}

type callbacks struct {
	onConnect           func(conversationID string)
	onDisconnect        func(err error)
	onMessage           func(message Message)
	onCorrection        func(correction events.AgentResponseCorrection)
	onVadScore          func(score float64)
	onUnhandledToolCall func(call events.ClientToolCall)
	onAgentToolResponse func(response events.AgentToolResponse)
	onAudio             func(audio []byte)
}

type Option func(*Session)

// WithTransport sets the transport the session connects with. It is
// required.
func WithTransport(t transport.Transport) Option {
	return func(s *Session) { s.transport = t }
}

func WithTokenFetcher(fetcher TokenFetcher) Option {
	return func(s *Session) {
		if fetcher != nil {
			s.tokens = fetcher
		}
	}
}

func WithAudioInput(input AudioInput) Option {
	return func(s *Session) { s.audioInput = input }
}

func WithAudioOutput(output AudioOutput) Option {
	return func(s *Session) { s.audioOutput = output }
}

// WithTools registers tools before the session starts. Tools can also be
// added later with [Session.RegisterTool].
func WithTools(named map[string]tools.Tool) Option {
	return func(s *Session) {
		for name, tool := range named {
			s.initialTools[name] = tool
		}
	}
}

// WithToolTimeout bounds each client tool execution. Zero or negative values
// keep [tools.DefaultTimeout].
func WithToolTimeout(timeout time.Duration) Option {
	return func(s *Session) { s.toolTimeout = timeout }
}

// WithDispatchQueueSize sets how many transport events and tool results may
// wait for the session loop before the transport reader blocks.
func WithDispatchQueueSize(size int) Option {
	return func(s *Session) { s.queueSize = size }
}

// WithConnectCallback is called with the conversation id once connected.
func WithConnectCallback(callback func(conversationID string)) Option {
	return func(s *Session) { s.callbacks.onConnect = callback }
}

// WithDisconnectCallback is called once when the session ends. err is nil
// for a clean shutdown.
func WithDisconnectCallback(callback func(err error)) Option {
	return func(s *Session) { s.callbacks.onDisconnect = callback }
}

// WithMessageCallback receives agent responses and final user transcripts.
func WithMessageCallback(callback func(message Message)) Option {
	return func(s *Session) { s.callbacks.onMessage = callback }
}

func WithCorrectionCallback(callback func(correction events.AgentResponseCorrection)) Option {
	return func(s *Session) { s.callbacks.onCorrection = callback }
}

func WithVadScoreCallback(callback func(score float64)) Option {
	return func(s *Session) { s.callbacks.onVadScore = callback }
}

// WithUnhandledToolCallCallback is called when the agent asks for a tool
// that is not registered. The agent still receives a failure result.
func WithUnhandledToolCallCallback(callback func(call events.ClientToolCall)) Option {
	return func(s *Session) { s.callbacks.onUnhandledToolCall = callback }
}

func WithAgentToolResponseCallback(callback func(response events.AgentToolResponse)) Option {
	return func(s *Session) { s.callbacks.onAgentToolResponse = callback }
}

// WithAudioCallback receives decoded agent audio chunks. The slice must not
// be retained.
func WithAudioCallback(callback func(audio []byte)) Option {
	return func(s *Session) { s.callbacks.onAudio = callback }
}
