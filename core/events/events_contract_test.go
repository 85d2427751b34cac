package events

import (
	"testing"
	"time"
)

func TestInboundEventsCarryKindAndTimestamp(t *testing.T) {
	before := time.Now()
	inbound := []Event{
		InitiationMetadata{Base: NewBase(KindInitiationMetadata)},
		Audio{Base: NewBase(KindAudio)},
		AgentResponse{Base: NewBase(KindAgentResponse)},
		AgentResponseCorrection{Base: NewBase(KindAgentResponseCorrection)},
		UserTranscript{Base: NewBase(KindUserTranscript)},
		ClientToolCall{Base: NewBase(KindClientToolCall)},
		AgentToolResponse{Base: NewBase(KindAgentToolResponse)},
		VadScore{Base: NewBase(KindVadScore)},
		Ping{Base: NewBase(KindPing)},
		Interruption{Base: NewBase(KindInterruption)},
	}

	seen := map[Kind]bool{}
	for _, event := range inbound {
		if event.Timestamp().Before(before) {
			t.Fatalf("expected %s timestamp to be set at construction", event.Kind())
		}
		if _, ok := decoders[event.Kind()]; !ok {
			t.Fatalf("expected a decoder for %s", event.Kind())
		}
		if seen[event.Kind()] {
			t.Fatalf("duplicate kind %s", event.Kind())
		}
		seen[event.Kind()] = true
	}
	if len(seen) != len(decoders) {
		t.Fatalf("expected every decoder to have an event type, got %d of %d", len(seen), len(decoders))
	}
}

func TestOutgoingEventsReportKinds(t *testing.T) {
	testCases := []struct {
		event Outgoing
		kind  Kind
	}{
		{NewUserMessage(""), KindUserMessage},
		{NewUserActivity(), KindUserActivity},
		{NewFeedback(true, 0), KindFeedback},
		{NewContextualUpdate(""), KindContextualUpdate},
		{NewClientToolResult("", ToolOutcome{}), KindClientToolResult},
		{NewPong(0), KindPong},
		{InitiationClientData{}, KindInitiationClientData},
		{NewUserAudioChunk(nil), KindUserAudioChunk},
	}

	for _, testCase := range testCases {
		if testCase.event.Kind() != testCase.kind {
			t.Fatalf("expected kind %s, got %s", testCase.kind, testCase.event.Kind())
		}
	}
}

func TestAudioBytes(t *testing.T) {
	audio := Audio{AudioBase64: "AAEC"}
	decoded, err := audio.Bytes()
	if err != nil {
		t.Fatalf("expected audio to decode, got %v", err)
	}
	if len(decoded) != 3 || decoded[2] != 2 {
		t.Fatalf("unexpected audio bytes %v", decoded)
	}

	if _, err := (Audio{AudioBase64: "%%%"}).Bytes(); err == nil {
		t.Fatalf("expected invalid base64 to fail")
	}
}
