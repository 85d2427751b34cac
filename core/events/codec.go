package events

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/koscakluka/convai-core/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrMissingType = errors.New("missing type field")
	ErrUnknownType = errors.New("unknown event type")
)

// DecodeError is returned for inbound messages that cannot be turned into an
// [Event]. It is never fatal for the stream: callers drop the message and
// keep reading.
type DecodeError struct {
	Type  Kind
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("failed to decode event: %v", e.Cause)
	}
	return fmt.Sprintf("failed to decode %q event: %v", e.Type, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

type eventDecoder struct {
	// payloadKeys lists the nested object names tried in order before
	// falling back to the top-level object.
	payloadKeys []string
	decode      func(payload []byte) (Event, error)
}

var decoders = map[Kind]eventDecoder{
	KindInitiationMetadata: {
		payloadKeys: []string{"conversation_initiation_metadata", "conversation_initiation_metadata_event"},
		decode:      decodeInitiationMetadata,
	},
	KindAudio:                   {payloadKeys: []string{"audio_event"}, decode: decodeAudio},
	KindAgentResponse:           {payloadKeys: []string{"agent_response_event"}, decode: decodeAgentResponse},
	KindAgentResponseCorrection: {payloadKeys: []string{"agent_response_correction_event"}, decode: decodeAgentResponseCorrection},
	KindUserTranscript:          {payloadKeys: []string{"user_transcription_event"}, decode: decodeUserTranscript},
	KindClientToolCall:          {payloadKeys: []string{"client_tool_call"}, decode: decodeClientToolCall},
	KindAgentToolResponse:       {payloadKeys: []string{"agent_tool_response"}, decode: decodeAgentToolResponse},
	KindVadScore:                {payloadKeys: []string{"vad_score_event"}, decode: decodeVadScore},
	KindPing:                    {payloadKeys: []string{"ping_event"}, decode: decodePing},
	KindInterruption:            {payloadKeys: []string{"interruption_event"}, decode: decodeInterruption},
}

// Decode parses one inbound protocol message.
func Decode(raw []byte) (Event, error) {
	event, err := decode(raw)
	if err != nil {
		var decodeErr *DecodeError
		kind := ""
		if errors.As(err, &decodeErr) {
			kind = string(decodeErr.Type)
		}
		decodeFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event.type", kind)))
		return nil, err
	}

	decodedEvents.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event.type", string(event.Kind()))))
	return event, nil
}

func decode(raw []byte) (Event, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &DecodeError{Cause: err}
	}

	rawType, ok := envelope["type"]
	if !ok {
		return nil, &DecodeError{Cause: ErrMissingType}
	}
	var kind Kind
	if err := json.Unmarshal(rawType, &kind); err != nil {
		return nil, &DecodeError{Cause: fmt.Errorf("invalid type field: %w", err)}
	}

	decoder, ok := decoders[kind]
	if !ok {
		return nil, &DecodeError{Type: kind, Cause: ErrUnknownType}
	}

	payload := []byte(raw)
	for _, key := range decoder.payloadKeys {
		if nested, ok := envelope[key]; ok && isObject(nested) {
			payload = nested
			break
		}
	}

	event, err := decoder.decode(payload)
	if err != nil {
		return nil, &DecodeError{Type: kind, Cause: err}
	}
	return event, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeInitiationMetadata(payload []byte) (Event, error) {
	var wire struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return InitiationMetadata{
		Base:                   NewBase(KindInitiationMetadata),
		ConversationID:         wire.ConversationID,
		AgentOutputAudioFormat: wire.AgentOutputAudioFormat,
		UserInputAudioFormat:   wire.UserInputAudioFormat,
	}, nil
}

func decodeAudio(payload []byte) (Event, error) {
	var wire struct {
		EventID     int    `json:"event_id"`
		AudioBase64 string `json:"audio_base64"`
		// Older servers spell the field with an extra underscore.
		AudioBase64Legacy string `json:"audio_base_64"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	audio := wire.AudioBase64
	if audio == "" {
		audio = wire.AudioBase64Legacy
	}
	return Audio{Base: NewBase(KindAudio), EventID: wire.EventID, AudioBase64: audio}, nil
}

func decodeAgentResponse(payload []byte) (Event, error) {
	var wire struct {
		AgentResponse string `json:"agent_response"`
		EventID       int    `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return AgentResponse{Base: NewBase(KindAgentResponse), Text: wire.AgentResponse, EventID: wire.EventID}, nil
}

func decodeAgentResponseCorrection(payload []byte) (Event, error) {
	var wire struct {
		OriginalAgentResponse  string `json:"original_agent_response"`
		CorrectedAgentResponse string `json:"corrected_agent_response"`
		EventID                int    `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return AgentResponseCorrection{
		Base:              NewBase(KindAgentResponseCorrection),
		OriginalResponse:  wire.OriginalAgentResponse,
		CorrectedResponse: wire.CorrectedAgentResponse,
		EventID:           wire.EventID,
	}, nil
}

func decodeUserTranscript(payload []byte) (Event, error) {
	var wire struct {
		UserTranscript string `json:"user_transcript"`
		EventID        int    `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return UserTranscript{Base: NewBase(KindUserTranscript), Text: wire.UserTranscript, EventID: wire.EventID}, nil
}

func decodeClientToolCall(payload []byte) (Event, error) {
	var wire struct {
		ToolName        string `json:"tool_name"`
		ToolCallID      string `json:"tool_call_id"`
		Parameters      Params `json:"parameters"`
		ExpectsResponse *bool  `json:"expects_response"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	if wire.ToolName == "" {
		return nil, errors.New("missing tool_name")
	}
	return ClientToolCall{
		Base:            NewBase(KindClientToolCall),
		ToolName:        wire.ToolName,
		ToolCallID:      wire.ToolCallID,
		Parameters:      wire.Parameters,
		ExpectsResponse: utils.Deref(wire.ExpectsResponse, true),
	}, nil
}

func decodeAgentToolResponse(payload []byte) (Event, error) {
	var wire struct {
		ToolName   string `json:"tool_name"`
		ToolCallID string `json:"tool_call_id"`
		ToolType   string `json:"tool_type"`
		IsError    bool   `json:"is_error"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return AgentToolResponse{
		Base:       NewBase(KindAgentToolResponse),
		ToolName:   wire.ToolName,
		ToolCallID: wire.ToolCallID,
		ToolType:   wire.ToolType,
		IsError:    wire.IsError,
	}, nil
}

func decodeVadScore(payload []byte) (Event, error) {
	var wire struct {
		VadScore *float64 `json:"vad_score"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return VadScore{Base: NewBase(KindVadScore), Score: utils.Deref(wire.VadScore, 0)}, nil
}

func decodePing(payload []byte) (Event, error) {
	var wire struct {
		EventID int  `json:"event_id"`
		PingMs  *int `json:"ping_ms"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return Ping{Base: NewBase(KindPing), EventID: wire.EventID, PingMs: wire.PingMs}, nil
}

func decodeInterruption(payload []byte) (Event, error) {
	var wire struct {
		EventID int `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, err
	}
	return Interruption{Base: NewBase(KindInterruption), EventID: wire.EventID}, nil
}

type toolOutcomeWire struct {
	Success bool    `json:"success"`
	Result  string  `json:"result"`
	Error   *string `json:"error"`
}

type clientToolResultWire struct {
	Type       Kind            `json:"type"`
	ToolCallID string          `json:"tool_call_id"`
	Result     toolOutcomeWire `json:"result"`
	IsError    bool            `json:"is_error"`
}

// Encode serialises an outgoing event with the wire field names of the
// protocol.
func Encode(event Outgoing) ([]byte, error) {
	var wire any
	switch e := event.(type) {
	case UserMessage:
		wire = struct {
			Type Kind   `json:"type"`
			Text string `json:"text"`
		}{Type: KindUserMessage, Text: e.Text}
	case UserActivity:
		wire = struct {
			Type Kind `json:"type"`
		}{Type: KindUserActivity}
	case Feedback:
		wire = struct {
			Type    Kind          `json:"type"`
			Score   FeedbackScore `json:"score"`
			EventID int           `json:"event_id"`
		}{Type: KindFeedback, Score: e.Score, EventID: e.EventID}
	case ContextualUpdate:
		wire = struct {
			Type Kind   `json:"type"`
			Text string `json:"text"`
		}{Type: KindContextualUpdate, Text: e.Text}
	case ClientToolResult:
		var errorMessage *string
		if e.Result.Error != "" {
			errorMessage = utils.Ptr(e.Result.Error)
		}
		wire = clientToolResultWire{
			Type:       KindClientToolResult,
			ToolCallID: e.ToolCallID,
			Result:     toolOutcomeWire{Success: e.Result.Success, Result: e.Result.Result, Error: errorMessage},
			IsError:    e.IsError,
		}
	case Pong:
		wire = struct {
			Type    Kind `json:"type"`
			EventID int  `json:"event_id"`
		}{Type: KindPong, EventID: e.EventID}
	case InitiationClientData:
		wire = e.wire()
	case UserAudioChunk:
		wire = struct {
			Audio string `json:"user_audio_chunk"`
		}{Audio: base64.StdEncoding.EncodeToString(e.Audio)}
	case nil:
		return nil, errors.New("cannot encode nil event")
	default:
		return nil, fmt.Errorf("cannot encode event of type %T", event)
	}

	encoded, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q event: %w", event.Kind(), err)
	}
	return encoded, nil
}
