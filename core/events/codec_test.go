package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/koscakluka/convai-core/internal/utils"
)

var ignoreBase = cmpopts.IgnoreTypes(Base{})

func TestDecodeInboundEvents(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected Event
	}{
		{
			name: "initiation metadata",
			raw:  `{"type":"conversation_initiation_metadata","conversation_initiation_metadata":{"conversation_id":"conv_1","agent_output_audio_format":"pcm_16000","user_input_audio_format":"pcm_16000"}}`,
			expected: InitiationMetadata{
				ConversationID:         "conv_1",
				AgentOutputAudioFormat: "pcm_16000",
				UserInputAudioFormat:   "pcm_16000",
			},
		},
		{
			name:     "initiation metadata with event suffix",
			raw:      `{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv_2"}}`,
			expected: InitiationMetadata{ConversationID: "conv_2"},
		},
		{
			name:     "audio",
			raw:      `{"type":"audio","audio_event":{"event_id":7,"audio_base64":"AAE="}}`,
			expected: Audio{EventID: 7, AudioBase64: "AAE="},
		},
		{
			name:     "audio with legacy field name",
			raw:      `{"type":"audio","audio_event":{"event_id":8,"audio_base_64":"AAI="}}`,
			expected: Audio{EventID: 8, AudioBase64: "AAI="},
		},
		{
			name:     "agent response",
			raw:      `{"type":"agent_response","agent_response_event":{"agent_response":"Hello"}}`,
			expected: AgentResponse{Text: "Hello"},
		},
		{
			name: "agent response correction",
			raw:  `{"type":"agent_response_correction","agent_response_correction_event":{"original_agent_response":"Hello there","corrected_agent_response":"Hello"}}`,
			expected: AgentResponseCorrection{
				OriginalResponse:  "Hello there",
				CorrectedResponse: "Hello",
			},
		},
		{
			name:     "user transcript",
			raw:      `{"type":"user_transcript","user_transcription_event":{"user_transcript":"hi"}}`,
			expected: UserTranscript{Text: "hi"},
		},
		{
			name: "agent tool response",
			raw:  `{"type":"agent_tool_response","agent_tool_response":{"tool_name":"end_call","tool_call_id":"t1","tool_type":"system","is_error":true}}`,
			expected: AgentToolResponse{
				ToolName:   "end_call",
				ToolCallID: "t1",
				ToolType:   "system",
				IsError:    true,
			},
		},
		{
			name:     "vad score",
			raw:      `{"type":"vad_score","vad_score_event":{"vad_score":0.75}}`,
			expected: VadScore{Score: 0.75},
		},
		{
			name:     "vad score defaults to zero",
			raw:      `{"type":"vad_score","vad_score_event":{}}`,
			expected: VadScore{Score: 0},
		},
		{
			name:     "ping with null ping_ms",
			raw:      `{"type":"ping","ping_event":{"event_id":3,"ping_ms":null}}`,
			expected: Ping{EventID: 3},
		},
		{
			name:     "ping with ping_ms",
			raw:      `{"type":"ping","ping_event":{"event_id":4,"ping_ms":120}}`,
			expected: Ping{EventID: 4, PingMs: utils.Ptr(120)},
		},
		{
			name:     "interruption",
			raw:      `{"type":"interruption","interruption_event":{"event_id":11}}`,
			expected: Interruption{EventID: 11},
		},
		{
			name:     "flat payload falls back to top level",
			raw:      `{"type":"interruption","event_id":12}`,
			expected: Interruption{EventID: 12},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			event, err := Decode([]byte(testCase.raw))
			if err != nil {
				t.Fatalf("expected event to decode, got %v", err)
			}
			if event.Kind() == "" {
				t.Fatalf("expected decoded event to carry its kind")
			}
			if diff := cmp.Diff(testCase.expected, event, ignoreBase); diff != "" {
				t.Fatalf("decoded event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeClientToolCallPreservesParameterKinds(t *testing.T) {
	raw := `{"type":"client_tool_call","client_tool_call":{"tool_name":"lookup","tool_call_id":"c1","parameters":{"name":"Ada","count":3,"ratio":0.5,"enabled":false,"tags":["a",1,true],"nested":{"id":"x"},"missing":null},"expects_response":false}}`

	event, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("expected tool call to decode, got %v", err)
	}

	call, ok := event.(ClientToolCall)
	if !ok {
		t.Fatalf("expected ClientToolCall, got %T", event)
	}

	expected := ClientToolCall{
		ToolName:   "lookup",
		ToolCallID: "c1",
		Parameters: Params{
			"name":    NewString("Ada"),
			"count":   NewNumber("3"),
			"ratio":   NewNumber("0.5"),
			"enabled": NewBool(false),
			"tags":    NewSequence(NewString("a"), NewNumber("1"), NewBool(true)),
			"nested":  NewMap(map[string]Value{"id": NewString("x")}),
			"missing": Null(),
		},
		ExpectsResponse: false,
	}
	if diff := cmp.Diff(expected, call, ignoreBase); diff != "" {
		t.Fatalf("decoded tool call mismatch (-want +got):\n%s", diff)
	}

	if count, ok := call.Parameters["count"].AsInt(); !ok || count != 3 {
		t.Fatalf("expected integer parameter 3, got %d (ok=%t)", count, ok)
	}
	if _, ok := call.Parameters["name"].AsFloat(); ok {
		t.Fatalf("expected string parameter not to read as a number")
	}
}

func TestDecodeClientToolCallDefaultsExpectsResponse(t *testing.T) {
	event, err := Decode([]byte(`{"type":"client_tool_call","tool_name":"echo","tool_call_id":"1","parameters":{}}`))
	if err != nil {
		t.Fatalf("expected flat tool call to decode, got %v", err)
	}

	call := event.(ClientToolCall)
	if !call.ExpectsResponse {
		t.Fatalf("expected expects_response to default to true")
	}
	if call.ToolName != "echo" || call.ToolCallID != "1" {
		t.Fatalf("unexpected tool call %+v", call)
	}
}

func TestDecodeFailures(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		wantKind  Kind
		wantCause error
	}{
		{name: "unknown type", raw: `{"type":"mystery","mystery_event":{}}`, wantKind: "mystery", wantCause: ErrUnknownType},
		{name: "missing type", raw: `{"ping_event":{"event_id":1}}`, wantCause: ErrMissingType},
		{name: "not json", raw: `{"type":`},
		{name: "tool call without name", raw: `{"type":"client_tool_call","client_tool_call":{"tool_call_id":"1"}}`, wantKind: KindClientToolCall},
		{name: "parameters not an object", raw: `{"type":"client_tool_call","client_tool_call":{"tool_name":"x","parameters":[1]}}`, wantKind: KindClientToolCall},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			event, err := Decode([]byte(testCase.raw))
			if err == nil {
				t.Fatalf("expected decode failure, got %T", event)
			}

			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T: %v", err, err)
			}
			if decodeErr.Type != testCase.wantKind {
				t.Fatalf("expected failure for type %q, got %q", testCase.wantKind, decodeErr.Type)
			}
			if testCase.wantCause != nil && !errors.Is(err, testCase.wantCause) {
				t.Fatalf("expected cause %v, got %v", testCase.wantCause, err)
			}
		})
	}
}

func TestDecodeUnknownTypeDoesNotPoisonStream(t *testing.T) {
	stream := []string{
		`{"type":"ping","ping_event":{"event_id":1}}`,
		`{"type":"brand_new_event","payload":{"x":1}}`,
		`not even json`,
		`{"type":"ping","ping_event":{"event_id":2}}`,
	}

	var pings []int
	failures := 0
	for _, raw := range stream {
		event, err := Decode([]byte(raw))
		if err != nil {
			failures++
			continue
		}
		if ping, ok := event.(Ping); ok {
			pings = append(pings, ping.EventID)
		}
	}

	if failures != 2 {
		t.Fatalf("expected 2 failures, got %d", failures)
	}
	if diff := cmp.Diff([]int{1, 2}, pings); diff != "" {
		t.Fatalf("expected pings around the bad messages to decode (-want +got):\n%s", diff)
	}
}

func TestEncodeOutgoingEvents(t *testing.T) {
	testCases := []struct {
		name     string
		event    Outgoing
		expected string
	}{
		{name: "user message", event: NewUserMessage("hi"), expected: `{"type":"user_message","text":"hi"}`},
		{name: "user activity", event: NewUserActivity(), expected: `{"type":"user_activity"}`},
		{name: "like", event: NewFeedback(true, 5), expected: `{"type":"feedback","score":"like","event_id":5}`},
		{name: "dislike", event: NewFeedback(false, 6), expected: `{"type":"feedback","score":"dislike","event_id":6}`},
		{name: "contextual update", event: NewContextualUpdate("on page 2"), expected: `{"type":"contextual_update","text":"on page 2"}`},
		{name: "pong", event: NewPong(3), expected: `{"type":"pong","event_id":3}`},
		{
			name:     "tool success",
			event:    NewClientToolResult("1", ToolOutcome{Success: true, Result: "ok"}),
			expected: `{"type":"client_tool_result","tool_call_id":"1","result":{"success":true,"result":"ok","error":null},"is_error":false}`,
		},
		{
			name:     "tool failure",
			event:    NewClientToolResult("2", ToolOutcome{Error: "boom"}),
			expected: `{"type":"client_tool_result","tool_call_id":"2","result":{"success":false,"result":"","error":"boom"},"is_error":true}`,
		},
		{name: "audio chunk", event: NewUserAudioChunk([]byte{0, 1}), expected: `{"user_audio_chunk":"AAE="}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			encoded, err := Encode(testCase.event)
			if err != nil {
				t.Fatalf("expected event to encode, got %v", err)
			}
			assertJSONEqual(t, testCase.expected, encoded)
		})
	}
}

func TestEncodeInitiationOmitsUnsetFields(t *testing.T) {
	encoded, err := Encode(InitiationClientData{})
	if err != nil {
		t.Fatalf("expected initiation to encode, got %v", err)
	}
	assertJSONEqual(t, `{"type":"conversation_initiation_client_data"}`, encoded)
}

func TestEncodeInitiationWithOverrides(t *testing.T) {
	encoded, err := Encode(InitiationClientData{
		Overrides: &Overrides{
			Agent:        &AgentOverrides{Prompt: "be brief", FirstMessage: "Hi!", Language: "en"},
			TTS:          &TTSOverrides{VoiceID: "voice-1"},
			Conversation: &ConversationOverrides{TextOnly: utils.Ptr(true)},
		},
		CustomLLMExtraBody: map[string]any{"temperature": 0.2},
		DynamicVariables:   map[string]any{"user_name": "Ada", "visits": 3},
		UserID:             "user-1",
		Source:             &SourceInfo{Source: "go_sdk", Version: "0.1.0"},
	})
	if err != nil {
		t.Fatalf("expected initiation to encode, got %v", err)
	}

	assertJSONEqual(t, `{
		"type": "conversation_initiation_client_data",
		"conversation_config_override": {
			"agent": {"prompt": {"prompt": "be brief"}, "first_message": "Hi!", "language": "en"},
			"tts": {"voice_id": "voice-1"},
			"conversation": {"text_only": true}
		},
		"custom_llm_extra_body": {"temperature": 0.2},
		"dynamic_variables": {"user_name": "Ada", "visits": 3},
		"user_id": "user-1",
		"source_info": {"source": "go_sdk", "version": "0.1.0"}
	}`, encoded)
}

func TestEncodeRejectsNil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatalf("expected nil event to fail encoding")
	}
}

func assertJSONEqual(t *testing.T, expected string, actual []byte) {
	t.Helper()

	var want, got any
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		t.Fatalf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal(actual, &got); err != nil {
		t.Fatalf("invalid encoded JSON %s: %v", actual, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("encoded JSON mismatch (-want +got):\n%s", diff)
	}
}
