package convai

import (
	"context"
	"time"

	"github.com/koscakluka/convai-core/core/audio"
	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// eventHandler applies inbound events to session state. Every method runs on
// the session loop except the tool goroutines started by handleToolCall.
type eventHandler struct {
	// ctx bounds tool executions; it is cancelled when the session ends.
	ctx         context.Context
	send        func(events.Outgoing)
	post        func(name string, fn func()) bool
	registry    *tools.Registry
	toolTimeout time.Duration
	audio       *audioIO
	callbacks   *callbacks

	mode            *observable[Mode]
	canSendFeedback *observable[bool]
	// setConversationID stores the id unless one is already known.
	setConversationID func(id string)

	feedback feedbackTracker
}

func (h *eventHandler) handleMessage(raw []byte) {
	event, err := events.Decode(raw)
	if err != nil {
		logger.Warn("dropping undecodable event", "error", err)
		return
	}
	h.handle(event)
}

func (h *eventHandler) handle(event events.Event) {
	switch e := event.(type) {
	case events.Ping:
		// Pongs go out before anything else the ping could be queued behind.
		h.send(events.NewPong(e.EventID))
		h.feedback.observeEvent(e.EventID)

	case events.InitiationMetadata:
		h.handleInitiationMetadata(e)

	case events.AgentResponse:
		h.feedback.observeAgentResponse(e.EventID)
		h.mode.set(ModeSpeaking)
		h.canSendFeedback.set(h.feedback.canSend())
		h.audio.ensurePlayback()
		if h.callbacks.onMessage != nil {
			h.callbacks.onMessage(Message{Source: SourceAgent, Text: e.Text})
		}

	case events.AgentResponseCorrection:
		logger.Debug("agent response corrected",
			"original", e.OriginalResponse,
			"corrected", e.CorrectedResponse)
		if h.callbacks.onCorrection != nil {
			h.callbacks.onCorrection(e)
		}

	case events.UserTranscript:
		h.feedback.observeEvent(e.EventID)
		if h.callbacks.onMessage != nil {
			h.callbacks.onMessage(Message{Source: SourceUser, Text: e.Text})
		}

	case events.Interruption:
		h.feedback.observeEvent(e.EventID)
		h.feedback.interrupted()
		h.mode.set(ModeListening)
		h.canSendFeedback.set(false)
		h.audio.clear()

	case events.Audio:
		chunk, err := e.Bytes()
		if err != nil {
			logger.Warn("dropping agent audio", "error", err)
			return
		}
		h.feedback.observeAudio(e.EventID)
		h.audio.play(chunk)
		if h.callbacks.onAudio != nil {
			h.callbacks.onAudio(chunk)
		}

	case events.ClientToolCall:
		h.handleToolCall(e)

	case events.AgentToolResponse:
		logger.Info("agent tool finished",
			"tool", e.ToolName,
			"tool_call_id", e.ToolCallID,
			"tool_type", e.ToolType,
			"is_error", e.IsError)
		if h.callbacks.onAgentToolResponse != nil {
			h.callbacks.onAgentToolResponse(e)
		}

	case events.VadScore:
		if h.callbacks.onVadScore != nil {
			h.callbacks.onVadScore(e.Score)
		}

	default:
		logger.Debug("ignoring event", "type", string(event.Kind()))
	}
}

func (h *eventHandler) handleInitiationMetadata(e events.InitiationMetadata) {
	if e.ConversationID != "" {
		h.setConversationID(e.ConversationID)
	}
	checkFormat("agent output", e.AgentOutputAudioFormat, h.audio.hasOutput(), h.audio.outputEncoding())
	checkFormat("user input", e.UserInputAudioFormat, h.audio.hasInput(), h.audio.inputEncoding())
}

// checkFormat warns when the negotiated audio format differs from what the
// local device produces or expects.
func checkFormat(direction, format string, configured bool, device audio.EncodingInfo) {
	if format == "" || !configured {
		return
	}
	negotiated, err := audio.ParseFormat(format)
	if err != nil {
		logger.Warn("unrecognised audio format", "direction", direction, "format", format, "error", err)
		return
	}
	if negotiated != device {
		logger.Warn("audio format mismatch",
			"direction", direction,
			"negotiated", negotiated.String(),
			"device", device.String())
	}
}

// handleToolCall runs the tool off the loop so pings keep being answered.
// The result is posted back and only sent when the agent expects one.
func (h *eventHandler) handleToolCall(call events.ClientToolCall) {
	if !h.registry.Has(call.ToolName) {
		logger.Warn("agent called an unregistered tool", "tool", call.ToolName, "tool_call_id", call.ToolCallID)
		if h.callbacks.onUnhandledToolCall != nil {
			h.callbacks.onUnhandledToolCall(call)
		}
	}

	go func() {
		ctx, span := tracer.Start(h.ctx, "handle client tool call",
			trace.WithAttributes(
				attribute.String("tool.name", call.ToolName),
				attribute.String("tool.call_id", call.ToolCallID),
			))
		defer span.End()

		result := h.registry.Execute(ctx, call.ToolName, call.Parameters, h.toolTimeout)
		if result == nil || !call.ExpectsResponse || result.Failure == tools.FailureCancelled {
			return
		}

		h.post("client tool result", func() {
			h.send(events.NewClientToolResult(call.ToolCallID, result.Outcome()))
		})
	}()
}

// sendFeedback rates the latest agent response. Repeated calls for the same
// response do nothing.
func (h *eventHandler) sendFeedback(positive bool) {
	feedback, reason, ok := h.feedback.next(positive)
	if !ok {
		logger.Info("not sending feedback", "reason", reason)
		return
	}
	h.send(feedback)
	h.canSendFeedback.set(false)
}
