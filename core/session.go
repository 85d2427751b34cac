// Package convai is the client core of a conversational agent session: it
// connects a [transport.Transport], answers the agent's protocol events,
// runs client tools and drives optional audio devices.
//
// All session state changes and all observer callbacks happen on one
// goroutine per session. Observers may call back into the session.
package convai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/tokens"
	"github.com/koscakluka/convai-core/core/tools"
	"github.com/koscakluka/convai-core/core/transport"
	"github.com/koscakluka/convai-core/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Session struct {
	cfg     Config
	localID string

	transport    transport.Transport
	tokens       TokenFetcher
	audioInput   AudioInput
	audioOutput  AudioOutput
	initialTools map[string]tools.Tool
	toolTimeout  time.Duration
	queueSize    int
	callbacks    callbacks

	registry   *tools.Registry
	audio      *audioIO
	dispatcher *dispatcher
	handler    *eventHandler

	status          *observable[Status]
	mode            *observable[Mode]
	muted           *observable[bool]
	canSendFeedback *observable[bool]

	// ctx bounds tools and audio; End cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	conversationID string
	started        bool
	// attempt numbers Start calls; transport changes from an abandoned
	// attempt are ignored.
	attempt         int
	connected       bool
	connectNotified bool
	ended           bool
	endOnce         sync.Once

	muteMu sync.Mutex
}

// NewSession validates cfg and prepares a session. Nothing is connected
// until [Session.Start].
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		localID:      uuid.NewString(),
		initialTools: map[string]tools.Tool{},
	}
	if err := copier.CopyWithOption(&s.cfg, &cfg, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy configuration: %w", err)
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.AgentID == "" && s.cfg.ConversationToken == "" {
		return nil, &ConfigurationError{Field: "AgentID", Reason: "or ConversationToken must be set"}
	}
	if isNil(s.transport) {
		return nil, &ConfigurationError{Field: "transport", Reason: "must be set with WithTransport"}
	}
	if s.tokens == nil {
		s.tokens = tokens.NewClient()
	}
	if s.cfg.Source == "" {
		s.cfg.Source = DefaultSource
	}
	if s.cfg.Version == "" {
		s.cfg.Version = Version
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.dispatcher = newDispatcher(s.queueSize)
	notify := s.dispatcher.postControl
	s.status = newObservable("status", StatusDisconnected, notify)
	s.mode = newObservable("mode", ModeListening, notify)
	s.muted = newObservable("muted", false, notify)
	s.canSendFeedback = newObservable("can send feedback", false, notify)

	s.registry = tools.NewRegistry(tools.WithDefaultTimeout(s.toolTimeout))
	for name, tool := range s.initialTools {
		if err := s.registry.Register(name, tool); err != nil {
			s.cancel()
			return nil, &ConfigurationError{Field: "tools", Reason: err.Error()}
		}
	}
	s.audio = newAudioIO(s.audioInput, s.audioOutput)
	s.handler = &eventHandler{
		ctx:               s.ctx,
		send:              s.send,
		post:              s.dispatcher.post,
		registry:          s.registry,
		audio:             s.audio,
		callbacks:         &s.callbacks,
		mode:              s.mode,
		canSendFeedback:   s.canSendFeedback,
		setConversationID: s.setConversationID,
	}
	return s, nil
}

// Start connects the session. It blocks until the transport is connected or
// failed and must not be called from an observer.
func (s *Session) Start(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "start conversation", trace.WithAttributes(s.attributes()...))
	defer span.End()

	attempt, err := s.beginStart()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("failed to start conversation: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.mu.Lock()
			s.attempt++
			if !s.ended {
				s.status.set(StatusError)
			}
			s.mu.Unlock()
		}
	}()

	s.dispatcher.start()
	s.transport.ObserveState(func(change transport.StateChange) {
		s.onTransportState(attempt, change)
	})
	s.transport.ObserveMessages(s.onTransportMessage)

	token, err := s.token(ctx)
	if err != nil {
		return err
	}

	params := transport.SessionParams{Initiation: s.initiation()}
	if err := s.transport.Connect(ctx, token, s.serverURL(), params); err != nil {
		return err
	}

	if s.voiceMode() {
		capture := s.audio.hasMicrophonePermission()
		if !capture && s.audio.hasInput() {
			logger.Warn("microphone permission not granted, continuing without capture", "session", s.localID)
		}
		if err := s.audio.start(s.ctx, capture, s.sendAudio); err != nil {
			s.transport.ObserveState(nil)
			s.transport.ObserveMessages(nil)
			if disconnectErr := s.transport.Disconnect(); disconnectErr != nil {
				logger.Warn("failed to disconnect after audio failure", "error", disconnectErr)
			}
			if stopErr := s.audio.stop(); stopErr != nil {
				logger.Warn("failed to release audio", "error", stopErr)
			}
			return fmt.Errorf("failed to start audio: %w", err)
		}
	}
	return nil
}

func (s *Session) beginStart() (attempt int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, ErrSessionEnded
	}
	switch s.status.get() {
	case StatusConnecting, StatusConnected, StatusDisconnecting:
		return 0, ErrSessionActive
	}
	s.started = true
	s.connected = false
	s.attempt++
	s.status.set(StatusConnecting)
	return s.attempt, nil
}

func (s *Session) token(ctx context.Context) (string, error) {
	if s.cfg.ConversationToken != "" {
		return s.cfg.ConversationToken, nil
	}

	token, err := s.tokens.Fetch(ctx, tokens.Request{
		AgentID: s.cfg.AgentID,
		Source:  s.cfg.Source,
		Version: s.cfg.Version,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch conversation token: %w", err)
	}
	return token, nil
}

func (s *Session) serverURL() string {
	if s.cfg.ServerURL != "" {
		return s.cfg.ServerURL
	}
	if s.cfg.AgentID == "" {
		return DefaultServerURL
	}
	return DefaultServerURL + "?" + url.Values{"agent_id": {s.cfg.AgentID}}.Encode()
}

func (s *Session) initiation() *events.InitiationClientData {
	overrides := s.cfg.Overrides
	if s.cfg.TextOnly {
		textOnly := events.Overrides{}
		if overrides != nil {
			textOnly = *overrides
		}
		textOnly.Conversation = &events.ConversationOverrides{TextOnly: utils.Ptr(true)}
		overrides = &textOnly
	}

	return &events.InitiationClientData{
		Overrides:          overrides,
		CustomLLMExtraBody: s.cfg.CustomLLMExtraBody,
		DynamicVariables:   s.cfg.DynamicVariables,
		UserID:             s.cfg.UserID,
		Source:             &events.SourceInfo{Source: s.cfg.Source, Version: s.cfg.Version},
	}
}

func (s *Session) voiceMode() bool {
	if s.cfg.TextOnly {
		return false
	}
	if o := s.cfg.Overrides; o != nil && o.Conversation != nil && utils.Deref(o.Conversation.TextOnly, false) {
		return false
	}
	return s.audio.hasInput() || s.audio.hasOutput()
}

func (s *Session) sendAudio(frame []byte) {
	sender, ok := s.transport.(transport.AudioSender)
	if !ok || s.transport.State() != transport.StateConnected {
		return
	}
	if err := sender.SendAudio(frame); err != nil && !errors.Is(err, transport.ErrNotConnected) {
		logger.Debug("failed to send microphone audio", "error", err)
	}
}

func (s *Session) onTransportState(attempt int, change transport.StateChange) {
	s.dispatcher.post("transport state", func() { s.handleTransportState(attempt, change) })
}

func (s *Session) onTransportMessage(message []byte) {
	s.dispatcher.post("transport message", func() { s.handler.handleMessage(message) })
}

// handleTransportState applies transport changes in the order the transport
// reported them.
func (s *Session) handleTransportState(attempt int, change transport.StateChange) {
	s.mu.Lock()
	stale := s.ended || attempt != s.attempt
	wasConnected := s.connected
	if !stale {
		// Under mu so a concurrent End or failed Start cannot be overwritten.
		s.status.set(statusFromConnection(change.State))
	}
	s.mu.Unlock()
	if stale {
		return
	}

	switch change.State {
	case transport.StateConnected:
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		if change.ConversationID != "" {
			s.setConversationID(change.ConversationID)
		}
		s.notifyConnect()

	case transport.StateDisconnected, transport.StateError:
		if wasConnected {
			logger.Info("conversation closed by the transport",
				"session", s.localID,
				"state", change.State.String(),
				"error", change.Err)
			// End posts to this loop; it must not run on it.
			go s.end(change.Err)
		}
	}
}

// setConversationID keeps the first id learned, from the transport or from
// the initiation metadata.
func (s *Session) setConversationID(id string) {
	s.mu.Lock()
	if s.conversationID == "" {
		s.conversationID = id
	}
	s.mu.Unlock()
	s.notifyConnect()
}

// notifyConnect calls the connect callback once both the connection and the
// conversation id exist.
func (s *Session) notifyConnect() {
	s.mu.Lock()
	ready := s.connected && s.conversationID != "" && !s.connectNotified
	if ready {
		s.connectNotified = true
	}
	id := s.conversationID
	s.mu.Unlock()

	if ready && s.callbacks.onConnect != nil {
		s.callbacks.onConnect(id)
	}
}

// End disconnects and releases the session. It is safe to call at any time,
// any number of times, including from observers.
func (s *Session) End() {
	s.end(nil)
}

func (s *Session) end(cause error) {
	s.endOnce.Do(func() { s.shutdown(cause) })
}

func (s *Session) shutdown(cause error) {
	_, span := tracer.Start(context.Background(), "end conversation", trace.WithAttributes(s.attributes()...))
	defer span.End()

	s.mu.Lock()
	s.ended = true
	started := s.started
	s.mu.Unlock()

	s.dispatcher.start()
	s.transport.ObserveState(nil)
	s.transport.ObserveMessages(nil)
	if started {
		s.status.set(StatusDisconnecting)
	}

	var errs error
	if err := s.audio.stop(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop audio: %w", err))
	}
	if err := s.transport.Disconnect(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to disconnect transport: %w", err))
	}
	s.registry.Close()
	s.cancel()

	final := StatusDisconnected
	if errs != nil {
		logger.Warn("conversation teardown incomplete", "session", s.localID, "error", errs)
		span.RecordError(errs)
		span.SetStatus(codes.Error, errs.Error())
		final = StatusError
	}
	if cause != nil {
		final = StatusError
	}
	s.mode.set(ModeListening)
	s.canSendFeedback.set(false)
	s.status.set(final)

	if s.callbacks.onDisconnect != nil {
		disconnectErr := errors.Join(cause, errs)
		s.dispatcher.postControl("disconnect callback", func() { s.callbacks.onDisconnect(disconnectErr) })
	}
	s.dispatcher.drainAndClose()
}

// Done is closed once an ended session has delivered its last notification.
func (s *Session) Done() <-chan struct{} {
	return s.dispatcher.finished()
}

func (s *Session) send(event events.Outgoing) {
	kind := string(event.Kind())
	message, err := events.Encode(event)
	if err == nil {
		err = s.transport.Send(message)
	}

	outcome := "sent"
	if err != nil {
		outcome = "failed"
		logger.Warn("failed to send event", "session", s.localID, "type", kind, "error", err)
	}
	sentEvents.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event.type", kind),
		attribute.String("outcome", outcome),
	))
}

func (s *Session) control(name string, fn func()) {
	if !s.dispatcher.postControl(name, fn) {
		logger.Debug("session ended, dropping call", "session", s.localID, "call", name)
	}
}

func (s *Session) SendUserMessage(text string) {
	s.control("send user message", func() { s.send(events.NewUserMessage(text)) })
}

func (s *Session) SendContextualUpdate(text string) {
	s.control("send contextual update", func() { s.send(events.NewContextualUpdate(text)) })
}

func (s *Session) SendUserActivity() {
	s.control("send user activity", func() { s.send(events.NewUserActivity()) })
}

// SendFeedback rates the latest agent response. It does nothing when there
// is no response to rate or the response was already rated.
func (s *Session) SendFeedback(positive bool) {
	s.control("send feedback", func() { s.handler.sendFeedback(positive) })
}

func (s *Session) RegisterTool(name string, tool tools.Tool) error {
	return s.registry.Register(name, tool)
}

func (s *Session) UnregisterTool(name string) bool {
	return s.registry.Unregister(name)
}

// ToolDefinitions describes the registered tools.
func (s *Session) ToolDefinitions() []tools.Definition {
	return s.registry.Definitions()
}

func (s *Session) ToggleMute() {
	s.muteMu.Lock()
	defer s.muteMu.Unlock()
	s.applyMuted(!s.muted.get())
}

func (s *Session) SetMicMuted(muted bool) {
	s.muteMu.Lock()
	defer s.muteMu.Unlock()
	s.applyMuted(muted)
}

func (s *Session) applyMuted(muted bool) {
	if !s.muted.set(muted) {
		return
	}
	if err := s.audio.setMuted(muted); err != nil {
		logger.Warn("failed to change microphone mute", "muted", muted, "error", err)
	}
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// LocalID identifies the session in logs before the server assigns a
// conversation id.
func (s *Session) LocalID() string { return s.localID }

func (s *Session) Status() Status        { return s.status.get() }
func (s *Session) Mode() Mode            { return s.mode.get() }
func (s *Session) IsMuted() bool         { return s.muted.get() }
func (s *Session) CanSendFeedback() bool { return s.canSendFeedback.get() }

func (s *Session) ObserveStatus(observer func(Status)) (unsubscribe func()) {
	return s.status.observe(observer)
}

func (s *Session) ObserveMode(observer func(Mode)) (unsubscribe func()) {
	return s.mode.observe(observer)
}

func (s *Session) ObserveMuted(observer func(bool)) (unsubscribe func()) {
	return s.muted.observe(observer)
}

func (s *Session) ObserveCanSendFeedback(observer func(bool)) (unsubscribe func()) {
	return s.canSendFeedback.observe(observer)
}

func (s *Session) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("session.local_id", s.localID),
		attribute.String("agent.id", s.cfg.AgentID),
	}
}
